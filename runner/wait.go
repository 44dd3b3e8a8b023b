package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrReportTimeout indicates the runner's report file did not appear within
// the configured bound.
var ErrReportTimeout = errors.New("timed out waiting for report file")

// WaitForFile blocks until path exists, checking at interval, for at most
// timeout. It returns ErrReportTimeout when the bound elapses and the
// context error when the caller cancels first. The file is produced
// asynchronously by the test runner, so existence is the only readiness
// signal available.
func WaitForFile(ctx context.Context, path string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %v", ErrReportTimeout, path, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
