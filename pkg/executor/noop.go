package executor

import (
	"context"
	"time"

	"github.com/varaku1012/quantumwala/pkg/models"
)

// NoopExecutor completes every task successfully after an optional delay.
// Useful for dry runs and scheduler tests.
type NoopExecutor struct {
	Delay time.Duration
}

func (n NoopExecutor) Execute(ctx context.Context, task models.Task) (string, error) {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return "", wrapCtxErr(ctx.Err())
		}
	}
	return "ok", nil
}

func wrapCtxErr(err error) error {
	if err == context.DeadlineExceeded {
		return ErrTimeout
	}
	return err
}
