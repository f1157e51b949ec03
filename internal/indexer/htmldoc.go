package indexer

import (
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

// htmlExtensions are the file types routed through article extraction
// before chunking instead of being chunked as raw markup.
var htmlExtensions = map[string]bool{".html": true, ".htm": true}

// convertHTMLToText extracts the main article from an HTML document via
// readability, falling back to the whole document when extraction finds
// nothing, then converts the result to Markdown so it chunks and embeds
// the same way any other text document does.
func convertHTMLToText(relPath string, raw []byte) (string, error) {
	html := string(raw)
	base := &url.URL{Scheme: "file", Path: relPath}

	articleHTML := html
	if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
	}

	md, err := htmltomarkdown.ConvertString(articleHTML)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
