// Package forwarder implements the Upstream Forwarder: a thin proxy to an
// OpenAI-compatible chat-completions endpoint, in both non-streaming and
// server-sent-events modes. It strips the gateway's own extension fields
// before forwarding and otherwise passes the request and response through
// unmodified.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/manifold-ai/retromem/internal/config"
	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/proxyerrors"
)

// coreOnlyFields are the gateway's own extensions (spec §6); they are
// meaningless to the upstream and must not be forwarded.
var coreOnlyFields = []string{"memory_id", "memory_top_k", "rag_top_k"}

// DefaultTimeout bounds both a non-streaming call and the lifetime of a
// streaming relay.
const DefaultTimeout = 120 * time.Second

// Forwarder holds the upstream base URL, optional bearer token (static or
// OAuth2-sourced), and the instrumented HTTP client used for both request
// modes.
type Forwarder struct {
	baseURL     string
	apiKey      string
	tokenSource oauth2.TokenSource // non-nil when cfg.OAuth2 is configured; takes precedence over apiKey
	client      *http.Client
	timeout     time.Duration
}

// New builds a Forwarder from the upstream config. When cfg.OAuth2.TokenURL
// is set, the static APIKey is ignored and every request instead carries a
// bearer token minted by an OAuth2 client-credentials grant, refreshed
// automatically as it nears expiry.
func New(cfg config.UpstreamConfig) *Forwarder {
	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	f := &Forwarder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  observability.NewHTTPClient(&http.Client{}),
		timeout: timeout,
	}
	if cfg.OAuth2.TokenURL != "" {
		ccCfg := &clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		f.tokenSource = ccCfg.TokenSource(context.Background())
	}
	return f
}

// Forward POSTs body (with core-only fields stripped) to the upstream
// chat-completions endpoint and returns the raw response body verbatim. On
// a non-2xx upstream status it returns a *proxyerrors.UpstreamError
// carrying the original status and body.
func (f *Forwarder) Forward(ctx context.Context, body []byte) ([]byte, error) {
	log := observability.LoggerWithTrace(ctx)

	cleaned, err := stripCoreFields(body)
	if err != nil {
		return nil, fmt.Errorf("forwarder: strip extensions: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.newRequest(ctx, cleaned, false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Dur("duration", dur).Msg("forwarder: upstream request failed")
		return nil, fmt.Errorf("forwarder: upstream request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("forwarder: read upstream response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Dur("duration", dur).
			RawJSON("body", observability.RedactJSON(respBody)).Msg("forwarder: upstream returned non-2xx status")
		return nil, &proxyerrors.UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}
	log.Debug().Int("status", resp.StatusCode).Dur("duration", dur).Msg("forwarder: upstream request ok")
	return respBody, nil
}

func (f *Forwarder) newRequest(ctx context.Context, body []byte, stream bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("forwarder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	switch {
	case f.tokenSource != nil:
		tok, err := f.tokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("forwarder: acquire oauth2 token: %w", err)
		}
		tok.SetAuthHeader(req)
	case f.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	return req, nil
}

// stripCoreFields removes the gateway-only extension fields from a JSON
// request body, leaving every other field (known or not) untouched.
func stripCoreFields(body []byte) ([]byte, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	for _, field := range coreOnlyFields {
		delete(payload, field)
	}
	return json.Marshal(payload)
}

// IsStreamingRequest reports whether the inbound body requests a streamed
// response ("stream": true).
func IsStreamingRequest(body []byte) bool {
	var payload struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Stream
}
