// Package errs defines the error taxonomy shared by every component
// (spec §7): kinds, not type names, each wrapping an underlying cause so
// callers can errors.Is/As against a stable sentinel while still reading
// the original message.
package errs

import "errors"

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindGitFetch      Kind = "git_fetch"
	KindGitAuth       Kind = "git_auth"
	KindGitRefNotFound Kind = "git_ref_not_found"
	KindGitDiverged   Kind = "git_diverged"
	KindGitIO         Kind = "git_io"
	KindEmbedding     Kind = "embedding"
	KindVectorTransport  Kind = "vector_transport"
	KindVectorDimension  Kind = "vector_dimension_mismatch"
	KindVectorNotFound   Kind = "vector_not_found"
	KindVectorOther      Kind = "vector_other"
	KindChunker       Kind = "chunker"
	KindCancelled     Kind = "cancelled"
)

// Error is the common shape every component error takes: a kind, a
// message, and a wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Is lets callers write errors.Is(err, errs.Diverged) style checks against
// a kind rather than a specific wrapped instance.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// Sentinels usable directly with errors.Is(err, errs.Diverged).
var (
	Diverged  = &Error{Kind: KindGitDiverged, Msg: "branch diverged"}
	Cancelled = &Error{Kind: KindCancelled, Msg: "operation cancelled"}
)

func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
