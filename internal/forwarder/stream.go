package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/manifold-ai/retromem/internal/observability"
	"github.com/manifold-ai/retromem/internal/proxyerrors"
)

// Flusher is satisfied by http.Flusher; declared locally so this package
// does not need to import net/http's ResponseWriter surface.
type Flusher interface {
	Flush()
}

// Stream relays an upstream SSE chat-completion response to w byte-for-byte,
// flushing after every read. If the upstream returns a non-2xx status, a
// single `data: {"error":"..."}` frame is written and Stream returns the
// wrapped *proxyerrors.UpstreamError. Cancelling ctx (client disconnect)
// cancels the upstream request; DefaultTimeout bounds the whole relay.
func (f *Forwarder) Stream(ctx context.Context, body []byte, w io.Writer, fl Flusher) error {
	log := observability.LoggerWithTrace(ctx)

	cleaned, err := stripCoreFields(body)
	if err != nil {
		return fmt.Errorf("forwarder: strip extensions: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := f.newRequest(ctx, cleaned, true)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("forwarder: upstream stream request failed")
		writeErrorFrame(w, fl, err)
		return fmt.Errorf("forwarder: upstream stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Error().Int("status", resp.StatusCode).RawJSON("body", observability.RedactJSON(respBody)).
			Msg("forwarder: upstream stream returned non-2xx status")
		upstreamErr := &proxyerrors.UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
		writeErrorFrame(w, fl, upstreamErr)
		return upstreamErr
	}

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("forwarder: write to client: %w", writeErr)
			}
			fl.Flush()
		}
		if readErr != nil {
			if readErr == io.EOF {
				log.Debug().Dur("duration", time.Since(start)).Msg("forwarder: upstream stream relay complete")
				return nil
			}
			log.Error().Err(readErr).Dur("duration", time.Since(start)).Msg("forwarder: upstream stream read failed")
			return fmt.Errorf("forwarder: read upstream stream: %w", readErr)
		}
	}
}

// writeErrorFrame emits a single SSE data frame carrying an OpenAI-shaped
// error so clients mid-stream still get a parseable failure.
func writeErrorFrame(w io.Writer, fl Flusher, err error) {
	payload := map[string]string{"error": err.Error()}
	b, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", b)
	if fl != nil {
		fl.Flush()
	}
}
