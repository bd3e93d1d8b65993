package errors

import (
	"context"
)

// CheckContext translates context cancellation into a coded error so the
// session pipelines (observe, track, evaluate, decay) fail uniformly when
// the caller gives up mid-pass.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}
