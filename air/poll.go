package air

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Updater is anything that can take a reading on demand.
type Updater interface {
	Update(ctx context.Context) error
}

// Poll calls Update every interval until ctx is done or the sensor is marked failed.
// Transient errors are logged and the next tick tries again.
func Poll(ctx context.Context, updater Updater, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("sen44: poll interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		err := updater.Update(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrFailed):
			logger.Error("sensor failed, polling stopped", "error", err)
			return err
		case errors.Is(err, ErrNotInitialized):
			logger.Debug("sensor not initialized yet")
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Warn("update failed", "error", err)
		}
	}
}
