package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// teeRecorder relays every write to the underlying writer while also
// retaining a copy, so a byte-for-byte SSE passthrough can still be
// inspected afterward for background reconciliation.
type teeRecorder struct {
	w   io.Writer
	buf bytes.Buffer
}

func (t *teeRecorder) Write(p []byte) (int, error) {
	t.buf.Write(p)
	return t.w.Write(p)
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extractStreamedContent reconstructs the assistant's full reply from a raw
// concatenated SSE byte stream in OpenAI's chat-completion-chunk format.
// The response itself was relayed byte-for-byte without being parsed, so
// this is the only way background post-processing learns what was said.
func extractStreamedContent(raw []byte) string {
	var b strings.Builder
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		var chunk sseChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			switch {
			case c.Delta.Content != "":
				b.WriteString(c.Delta.Content)
			case c.Message.Content != "":
				b.WriteString(c.Message.Content)
			}
		}
	}
	return b.String()
}

// extractAssistantContent pulls choices[0].message.content out of a
// non-streaming chat-completion response body.
func extractAssistantContent(body []byte) string {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Choices) == 0 {
		return ""
	}
	return parsed.Choices[0].Message.Content
}
