package device

import (
	"context"

	"go.uber.org/multierr"
)

// Retry runs fn up to attempts times and stops at the first success. The
// returned error combines every failed attempt.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var errs error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}
