// Package vectorstore implements the vector store client (C4): a narrow
// async contract over collections and points (spec §4.2), backed by a real
// Qdrant deployment over gRPC. This is the only component that talks to the
// external vector database; every other package depends on the Store
// interface, never on the qdrant wire types directly.
package vectorstore

import (
	"context"

	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// Metric is the distance function a collection is created with. Cosine is
// the only metric the core ever requests (spec §4.2).
type Metric int

const (
	MetricCosine Metric = iota
)

// Condition is one payload-field predicate in a Filter. Exactly one of
// MatchKeyword or MatchAny should be set.
type Condition struct {
	Key         string
	MatchKeyword string
	MatchAny     []string
}

// Filter is a conjunction ("Must") of Conditions, matching the subset of
// Qdrant's filter language the core needs: equality and "one of" on
// keyword payload fields (branch, file_path, language, element_type,
// tenant_id).
type Filter struct {
	Must []Condition
}

// Eq is a convenience constructor for a single equality condition.
func Eq(key, value string) Filter {
	return Filter{Must: []Condition{{Key: key, MatchKeyword: value}}}
}

// Eq appends an equality condition to f, returning a new Filter. Calling it
// on a zero Filter{} is equivalent to the Eq constructor.
func (f Filter) Eq(key, value string) Filter {
	return f.And(key, value)
}

// And appends additional equality conditions to f, returning a new Filter.
func (f Filter) And(key, value string) Filter {
	out := Filter{Must: append([]Condition(nil), f.Must...)}
	out.Must = append(out.Must, Condition{Key: key, MatchKeyword: value})
	return out
}

// AndAny appends an "any of" condition.
func (f Filter) AndAny(key string, values []string) Filter {
	out := Filter{Must: append([]Condition(nil), f.Must...)}
	out.Must = append(out.Must, Condition{Key: key, MatchAny: values})
	return out
}

// PayloadIndexKind is the payload field type Qdrant should build a field
// index for.
type PayloadIndexKind int

const (
	PayloadIndexKeyword PayloadIndexKind = iota
	PayloadIndexInteger
)

// ScrollPage is one page of a Scroll call: the returned points and an
// opaque cursor to resume from, empty when exhausted.
type ScrollPage struct {
	Points []models.Point
	Cursor string
}

// Store is the async contract of spec §4.2. Every method is safe for
// concurrent use by multiple goroutines; per-collection write ordering is
// the caller's responsibility (spec §5 "C4 upsert concurrency is bounded
// per collection to 1 in-flight batch").
type Store interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	// CreateCollection is idempotent: a no-op if the collection exists with
	// the same dimension, and returns a *DimensionMismatchError if it
	// exists with a different one.
	CreateCollection(ctx context.Context, name string, dim int, metric Metric) error
	// EnsurePayloadIndex is idempotent.
	EnsurePayloadIndex(ctx context.Context, name, field string, kind PayloadIndexKind) error
	// Upsert is atomic at the level of one call and retries transient
	// transport errors with bounded exponential backoff (spec §4.2).
	Upsert(ctx context.Context, name string, points []models.Point) error
	DeleteByFilter(ctx context.Context, name string, filter Filter) error
	DeletePoints(ctx context.Context, name string, ids []string) error
	Scroll(ctx context.Context, name string, filter Filter, pageLimit uint32, cursor string) (ScrollPage, error)
	Search(ctx context.Context, name string, vector []float32, k uint64, filter Filter) ([]models.ScoredPoint, error)
	// DeleteCollection treats "not found" as success.
	DeleteCollection(ctx context.Context, name string) error
	HealthCheck(ctx context.Context) error
}

// DimensionMismatchError is returned by CreateCollection when an existing
// collection's vector size differs from the requested one (spec §4.2,
// VectorStoreError{DimensionMismatch}).
type DimensionMismatchError struct {
	Collection string
	Existing   int
	Requested  int
}

func (e *DimensionMismatchError) Error() string {
	return "vectorstore: collection " + e.Collection + " has dimension mismatch"
}
