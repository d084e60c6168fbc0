package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

// WithTimeout runs fn under a context that expires after timeout. fn must
// honour its context. A deadline hit by this wrapper, rather than by the
// parent, is reported as ErrTimeout.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(tctx)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, err)
	}
	return err
}
