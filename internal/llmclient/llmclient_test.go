package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ReturnsFirstChoiceContent(t *testing.T) {
	srv := newTestServer(t, "the user's wife is Anne")
	client := New(srv.URL, "test-key")

	out, err := client.Complete(context.Background(), "test-model", []Message{
		{Role: "system", Content: "extract facts"},
		{Role: "user", Content: "my wife is Anne"},
	}, 0, 256)
	require.NoError(t, err)
	assert.Equal(t, "the user's wife is Anne", out)
}

func TestCompleteJSON_ParsesFencedJSON(t *testing.T) {
	srv := newTestServer(t, "```json\n[\"fact one\", \"fact two\"]\n```")
	client := New(srv.URL, "test-key")

	var facts []string
	err := client.CompleteJSON(context.Background(), "test-model", []Message{{Role: "user", Content: "go"}}, 0, 256, &facts)
	require.NoError(t, err)
	assert.Equal(t, []string{"fact one", "fact two"}, facts)
}

func TestCompleteJSON_ParsesUnfencedJSON(t *testing.T) {
	srv := newTestServer(t, `{"summary": "durable facts only"}`)
	client := New(srv.URL, "test-key")

	var out struct {
		Summary string `json:"summary"`
	}
	err := client.CompleteJSON(context.Background(), "test-model", []Message{{Role: "user", Content: "go"}}, 0, 256, &out)
	require.NoError(t, err)
	assert.Equal(t, "durable facts only", out.Summary)
}
