package notify

import (
	"context"

	"optionwatch/internal/logger"
	"optionwatch/internal/models"
)

// ConsoleSink writes notification summaries to the process log.
type ConsoleSink struct{}

// NewConsoleSink creates a console sink.
func NewConsoleSink() *ConsoleSink { return &ConsoleSink{} }

// Name implements Sink.
func (s *ConsoleSink) Name() string { return "console" }

// Send implements Sink.
func (s *ConsoleSink) Send(_ context.Context, groups []models.UnderlyingGroup) error {
	logger.Info("notification:\n%s", formatSummary(groups))
	return nil
}
