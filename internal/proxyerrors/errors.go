// Package proxyerrors defines the typed error kinds shared across the
// gateway so handlers can translate failures into OpenAI-shaped responses
// without string matching.
package proxyerrors

import "fmt"

// UpstreamError wraps a non-2xx response from the upstream LLM. The original
// status and body are surfaced verbatim to the caller.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.Status, e.Body)
}

// StoreError wraps a transport fault from the vector store adapter.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store error during %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// TokenizerError is non-fatal; callers fall back to the char/4 heuristic
// when it occurs and should not propagate it to the client.
type TokenizerError struct {
	Model string
	Err   error
}

func (e *TokenizerError) Error() string {
	return fmt.Sprintf("tokenizer error for model %s: %v", e.Model, e.Err)
}
func (e *TokenizerError) Unwrap() error { return e.Err }

// SummarizationError is returned by the summarizer. Synchronous callers map
// it to HTTP 502; background callers log and skip.
type SummarizationError struct {
	Stage string
	Err   error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("summarization failed at %s: %v", e.Stage, e.Err)
}
func (e *SummarizationError) Unwrap() error { return e.Err }

// IngestionError is per-file; the indexer logs and skips rather than
// stopping the watcher.
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed for %s: %v", e.Path, e.Err)
}
func (e *IngestionError) Unwrap() error { return e.Err }

// DecisionError indicates the reconciliation LLM returned unparseable
// output. The reconciler's safeguard re-adds the new facts when this occurs.
type DecisionError struct {
	Err error
}

func (e *DecisionError) Error() string { return fmt.Sprintf("reconciliation decision error: %v", e.Err) }
func (e *DecisionError) Unwrap() error { return e.Err }
