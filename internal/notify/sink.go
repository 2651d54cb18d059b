// Package notify delivers big-trade notifications to the configured sinks.
package notify

import (
	"context"

	"optionwatch/internal/models"
)

// Sink delivers one cycle's grouped notifications. Implementations must be
// safe for use from a single dispatcher goroutine; Send is best-effort and
// failures are reported, never panicked.
type Sink interface {
	Name() string
	Send(ctx context.Context, groups []models.UnderlyingGroup) error
}

// StatusReporter is implemented by sinks that can also carry operational
// error and recovery notices.
type StatusReporter interface {
	SendError(err error) error
	SendRecovery(failureCount int) error
}
