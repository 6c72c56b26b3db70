// Package result provides the outcome type returned by the session core and sync repositories.
package result

import "errors"

// Kind tags a Result.
type Kind uint8

const (
	KindLoading Kind = iota
	KindSuccess
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindError:
		return "error"
	default:
		return "loading"
	}
}

var errLoading = errors.New("result: still loading")

// Result is exactly one of Success(value), Error(cause) or Loading.
// The zero value is Loading.
type Result[T any] struct {
	kind  Kind
	value T
	err   error
}

// Success wraps a value.
func Success[T any](v T) Result[T] { return Result[T]{kind: KindSuccess, value: v} }

// Failure wraps a cause. A nil cause is still an Error result.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("result: unknown error")
	}
	return Result[T]{kind: KindError, err: err}
}

// Loading is the pending state.
func Loading[T any]() Result[T] { return Result[T]{} }

// Of converts a (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

func (r Result[T]) Kind() Kind { return r.kind }
func (r Result[T]) IsSuccess() bool { return r.kind == KindSuccess }
func (r Result[T]) IsError() bool { return r.kind == KindError }
func (r Result[T]) IsLoading() bool { return r.kind == KindLoading }

// Err returns the cause of an Error result and nil otherwise.
func (r Result[T]) Err() error { return r.err }

// Get unpacks the result in the usual Go shape. Loading yields an error.
func (r Result[T]) Get() (T, error) {
	switch r.kind {
	case KindSuccess:
		return r.value, nil
	case KindError:
		var zero T
		return zero, r.err
	default:
		var zero T
		return zero, errLoading
	}
}

// ValueOr returns the success value or def.
func (r Result[T]) ValueOr(def T) T {
	if r.kind == KindSuccess {
		return r.value
	}
	return def
}
