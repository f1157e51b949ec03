package entrystore

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelim = "---"

// encodeMarkdown renders metadata as a YAML frontmatter block followed by
// content.
func encodeMarkdown(metadata Metadata, content string) ([]byte, error) {
	fm, err := yaml.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString(frontmatterDelim)
	b.WriteString("\n")
	b.Write(fm)
	b.WriteString(frontmatterDelim)
	b.WriteString("\n\n")
	b.WriteString(content)
	return []byte(b.String()), nil
}

// decodeMarkdown splits a frontmatter-delimited file into metadata and
// content.
func decodeMarkdown(raw []byte) (Metadata, string, error) {
	text := string(raw)
	if !strings.HasPrefix(text, frontmatterDelim) {
		return Metadata{}, "", fmt.Errorf("missing frontmatter delimiter")
	}
	rest := text[len(frontmatterDelim):]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+frontmatterDelim)
	if end == -1 {
		return Metadata{}, "", fmt.Errorf("unterminated frontmatter block")
	}
	fmBlock := rest[:end]
	body := rest[end+len("\n"+frontmatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var metadata Metadata
	if err := yaml.Unmarshal([]byte(fmBlock), &metadata); err != nil {
		return Metadata{}, "", fmt.Errorf("unmarshal frontmatter: %w", err)
	}
	return metadata, body, nil
}
