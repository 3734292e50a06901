package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/facefind/internal/models"
)

// checkEvery is how many comparisons run between context checks.
const checkEvery = 256

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// scanErr turns a deadline into ErrTimeout and passes other errors through.
func scanErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return err
}
