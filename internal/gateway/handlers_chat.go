package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/manifold-ai/retromem/internal/longconvo"
	"github.com/manifold-ai/retromem/internal/observability"
)

// handleChatCompletions is the gateway's one business endpoint: retrieval
// augmentation, upstream forward, and fire-and-forget post-write, per spec
// §4.K.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	defer r.Body.Close()

	req, err := parseChatRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	userMessage, _ := req.lastUserMessage()

	ragTopK := topK(req.ragTopK, s.cfg.Retrieval.DefaultTopK)
	memTopK := topK(req.memoryTopK, s.cfg.Retrieval.DefaultTopK)

	var aug augmentation
	if ragTopK != 0 {
		block, sources := s.retrieveDocs(ctx, userMessage, ragTopK)
		req.insertSystemBlock(block)
		aug.ragSources = sources
	}
	if memTopK != 0 && req.memoryID != "" {
		block, hits := s.retrieveMemory(ctx, req.memoryID, userMessage, memTopK)
		req.insertSystemBlock(block)
		aug.memoryHits = hits
	}

	var longConv *longconvo.Conversation
	if s.longConvo != nil && s.cfg.LongConvo.Enabled && req.memoryID != "" {
		systemPrompt := extractSystemPrompt(req.messages)
		conv, history, lcErr := s.longConvo.BuildContextForTurn(req.memoryID, systemPrompt, userMessage)
		if lcErr != nil {
			observability.LoggerWithTrace(ctx).Error().Err(lcErr).Str("conversation_id", req.memoryID).Msg("gateway: long-conversation context build failed, falling back to raw history")
		} else {
			longConv = conv
			req.replaceMessages(toMessages(history))
		}
	}

	cleanedBody, err := req.marshal()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if req.stream {
		s.handleStreamingForward(w, r, cleanedBody, req, longConv, userMessage)
		return
	}
	s.handleNonStreamingForward(w, r, cleanedBody, req, aug, longConv, userMessage)
}

func (s *Server) handleNonStreamingForward(w http.ResponseWriter, r *http.Request, body []byte, req *chatRequest, aug augmentation, longConv *longconvo.Conversation, userMessage string) {
	respBody, err := s.forward.Forward(r.Context(), body)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	var payload map[string]any
	if jsonErr := json.Unmarshal(respBody, &payload); jsonErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(respBody)
	} else {
		if len(aug.ragSources) > 0 {
			payload["rag_sources"] = aug.ragSources
		}
		if len(aug.memoryHits) > 0 {
			payload["memory_hits"] = aug.memoryHits
		}
		respondJSON(w, http.StatusOK, payload)
	}

	s.scheduleBackgroundWork(req, longConv, userMessage, extractAssistantContent(respBody))
}

func (s *Server) handleStreamingForward(w http.ResponseWriter, r *http.Request, body []byte, req *chatRequest, longConv *longconvo.Conversation, userMessage string) {
	fl, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, errors.New("streaming not supported by response writer"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	rec := &teeRecorder{w: w}
	if err := s.forward.Stream(r.Context(), body, rec, fl); err != nil {
		observability.LoggerWithTrace(r.Context()).Warn().Err(err).Msg("gateway: upstream stream relay ended with error")
	}

	s.scheduleBackgroundWork(req, longConv, userMessage, extractStreamedContent(rec.buf.Bytes()))
}

// scheduleBackgroundWork runs fact extraction/summary maintenance and
// long-conversation segment recording as a tracked background task,
// detached from the client's (possibly already-cancelled) request context
// per spec §5's cancellation model.
func (s *Server) scheduleBackgroundWork(req *chatRequest, longConv *longconvo.Conversation, userMessage, assistantContent string) {
	if req.memoryID == "" || userMessage == "" {
		return
	}
	conversationID := req.memoryID
	s.tasks.Go(func() {
		bgCtx := context.Background()
		if s.recon != nil {
			s.recon.Process(bgCtx, conversationID, userMessage)
		}
		if s.longConvo != nil && longConv != nil {
			s.longConvo.RecordTurn(bgCtx, longConv, userMessage, assistantContent)
		}
	})
}

func extractSystemPrompt(messages []map[string]any) string {
	for _, m := range messages {
		if role, _ := m["role"].(string); role == "system" {
			content, _ := m["content"].(string)
			return content
		}
	}
	return ""
}

func toMessages(history []longconvo.ContextMessage) []map[string]any {
	out := make([]map[string]any, len(history))
	for i, m := range history {
		out[i] = map[string]any{"role": m.Role, "content": m.Content}
	}
	return out
}
