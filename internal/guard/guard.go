// Package guard wraps pipeline stages with a timeout/fallback race and owns
// the one choke point through which every stage's trace entry and progress
// event flows. Stages never publish directly.
package guard

import (
	"context"
	"time"
)

// StageFunc is a guarded stage call producing a value of type T.
type StageFunc[T any] func(ctx context.Context) (T, error)

// FallbackCause says why a stage's fallback value was substituted. The
// distinction is kept only in the per-stage trace detail, never in run-level
// state.
type FallbackCause string

const (
	CauseNone       FallbackCause = ""
	CauseTimeout    FallbackCause = "timeout"
	CauseError      FallbackCause = "error"
	CauseValidation FallbackCause = "validation"
	CauseMissing    FallbackCause = "missing_input"
)

// WithTimeout races fn against the timeout. Exactly one of the stage result
// or the fallback is returned: the fallback on timeout or on any error from
// fn (errors never propagate to the caller), the stage result otherwise. The
// returned cause is CauseNone iff the stage result won; the error is the
// stage's rejection when the cause is CauseError.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn StageFunc[T], fallback T) (T, FallbackCause, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		val, err := fn(cctx)
		ch <- outcome{val, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return fallback, CauseError, out.err
		}
		return out.val, CauseNone, nil
	case <-cctx.Done():
		return fallback, CauseTimeout, nil
	}
}
