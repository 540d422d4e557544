package embedder

import (
	"context"
	"fmt"
)

// Pool wraps an ordered sequence of pre-initialized Embedder sessions and
// exposes one batched Embed operation with concurrency bounded to the
// session count (spec §4.4). A session is single-threaded: the pool never
// hands the same session to two concurrent callers.
//
// Failure mode choice (spec §4.4): a single-text failure fails the whole
// batch. The core never returns a partial result next to a parallel error
// vector — callers that need per-file isolation (the sync engine) are
// expected to call Embed once per file's chunk set, so a batch failure
// only costs that one file (spec §4.6 step 6, "per-file parse/embed
// failure: log, skip file, continue sync").
type Pool struct {
	sessions chan Embedder
	dim      int
	size     int
}

// NewPool builds a pool from a non-empty, ordered slice of sessions. All
// sessions must report the same Dimension(); NewPool primes the first
// session with a throwaway embed before returning, guaranteeing the first
// caller doesn't pay full cold-start cost (spec §4.4 "Warm-up").
func NewPool(ctx context.Context, sessions []Embedder) (*Pool, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("embedder pool: at least one session is required")
	}
	dim := sessions[0].Dimension()
	for i, s := range sessions {
		if s.Dimension() != dim {
			return nil, fmt.Errorf("embedder pool: session %d dimension %d != %d", i, s.Dimension(), dim)
		}
	}

	if _, err := sessions[0].EmbedSingle(ctx, "warmup"); err != nil {
		return nil, &Error{Msg: "warm-up failed", Err: err}
	}

	ch := make(chan Embedder, len(sessions))
	for _, s := range sessions {
		ch <- s
	}
	return &Pool{sessions: ch, dim: dim, size: len(sessions)}, nil
}

// Dimension returns the fixed output vector length for this pool.
func (p *Pool) Dimension() int { return p.dim }

// Size returns the number of sessions (the pool's maximum embed
// concurrency).
func (p *Pool) Size() int { return p.size }

// Embed acquires one idle session (suspending if all are busy), embeds
// the full batch on it, and releases the session back to the pool
// regardless of outcome. Cancelling ctx while waiting for a session
// returns ctx.Err() without acquiring one; cancelling mid-embed is left to
// the session's own ctx handling, but the session is always returned to
// the pool so the pool never leaks a slot.
func (p *Pool) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var session Embedder
	select {
	case session = <-p.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.sessions <- session }()

	vecs, err := session.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, &Error{Msg: "session returned mismatched vector count"}
	}
	return vecs, nil
}

// EmbedSingle is a convenience wrapper for the one-text case (e.g. C8's
// query embedding).
func (p *Pool) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

var _ Embedder = (*Pool)(nil)
