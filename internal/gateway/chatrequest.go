package gateway

import (
	"encoding/json"
	"fmt"
)

// chatRequest is a loosely-typed view over an inbound OpenAI-compatible
// chat-completions body. Unknown fields are preserved verbatim (spec §6)
// by keeping the original decoded map and only ever replacing the
// "messages" key before re-marshaling.
type chatRequest struct {
	raw      map[string]any
	messages []map[string]any

	stream     bool
	model      string
	memoryID   string
	memoryTopK *int
	ragTopK    *int
}

func parseChatRequest(body []byte) (*chatRequest, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode chat request: %w", err)
	}

	req := &chatRequest{raw: raw}
	if s, ok := raw["stream"].(bool); ok {
		req.stream = s
	}
	if m, ok := raw["model"].(string); ok {
		req.model = m
	}
	if id, ok := raw["memory_id"].(string); ok {
		req.memoryID = id
	}
	if n, ok := intField(raw, "memory_top_k"); ok {
		req.memoryTopK = &n
	}
	if n, ok := intField(raw, "rag_top_k"); ok {
		req.ragTopK = &n
	}

	msgsRaw, _ := raw["messages"].([]any)
	req.messages = make([]map[string]any, 0, len(msgsRaw))
	for _, m := range msgsRaw {
		if mm, ok := m.(map[string]any); ok {
			req.messages = append(req.messages, mm)
		}
	}
	return req, nil
}

func intField(raw map[string]any, key string) (int, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// topK resolves an extension's requested top_k against a default: an
// explicit value (including an explicit 0, which disables retrieval per
// spec §4.F) wins; an absent field falls back to def.
func topK(explicit *int, def int) int {
	if explicit == nil {
		return def
	}
	return *explicit
}

// lastUserMessage returns the content and index of the most recent
// user-role message, or ("", -1) if there is none.
func (r *chatRequest) lastUserMessage() (string, int) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if role, _ := r.messages[i]["role"].(string); role == "user" {
			content, _ := r.messages[i]["content"].(string)
			return content, i
		}
	}
	return "", -1
}

// insertSystemBlock splices a new system message immediately before the
// most recent user message (or at the front, if there is none), so
// retrieved context reads as grounding for the question that triggered it.
func (r *chatRequest) insertSystemBlock(content string) {
	if content == "" {
		return
	}
	_, idx := r.lastUserMessage()
	if idx < 0 {
		idx = len(r.messages)
	}
	msg := map[string]any{"role": "system", "content": content}
	out := make([]map[string]any, 0, len(r.messages)+1)
	out = append(out, r.messages[:idx]...)
	out = append(out, msg)
	out = append(out, r.messages[idx:]...)
	r.messages = out
}

// replaceMessages swaps the message history entirely, used when
// long-conversation mode supplies its own token-budgeted context.
func (r *chatRequest) replaceMessages(messages []map[string]any) {
	r.messages = messages
}

func (r *chatRequest) marshal() ([]byte, error) {
	out := make(map[string]any, len(r.raw))
	for k, v := range r.raw {
		out[k] = v
	}
	msgs := make([]any, len(r.messages))
	for i, m := range r.messages {
		msgs[i] = m
	}
	out["messages"] = msgs
	return json.Marshal(out)
}
