// Package client implements the caller-facing dispatcher of spec §4.5: the
// four handler shapes (unary, subscription, upload, stream) as generic
// call functions over an internal/rsession.Session.
package client

import "github.com/riverrpc/river"

// Result is the tagged Ok/Err union every call returns, realizing the
// redesign flag in spec §9 that asks for Result[T] in place of an
// untyped (value, error) pair. Err carries application-level ProtoErrors
// and, for Call and Upload.Finish, transport failures mapped to a
// ProtoError code such as UNEXPECTED_DISCONNECT.
type Result[T any] struct {
	Value T
	Err   *river.ProtoError
}

// OK reports whether the call's remote side returned success.
func (r Result[T]) OK() bool { return r.Err == nil }

func ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func errResult[T any](e *river.ProtoError) Result[T] { return Result[T]{Err: e} }
