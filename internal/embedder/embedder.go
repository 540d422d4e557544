// Package embedder implements the embedder pool (C1): a bounded set of
// single-threaded embedding sessions exposed as one batched embed(texts)
// operation with back-pressure (spec §4.4). The ONNX runtime itself is an
// external collaborator (spec §1 Non-goals); this package only defines the
// Embedder capability a session wraps and the pool that schedules work
// across N of them.
package embedder

import "context"

// Embedder is the capability one session provides (spec §6.1). A concrete
// Embedder might wrap a local ONNX model, or — as used here for the HTTP
// reference sessions — a remote embedding API; the pool is agnostic to
// which.
type Embedder interface {
	// Dimension returns the embedder's output vector length. Constant for
	// the lifetime of the Embedder.
	Dimension() int
	// Embed embeds a batch of texts, preserving input order. len(out) ==
	// len(texts) on success.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Error is returned for model load, tokenization, or inference failures
// (spec §4.4 EmbeddingError).
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "embedding: " + e.Msg + ": " + e.Err.Error()
	}
	return "embedding: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }
