package logger

import "log/slog"

// NewNope returns a logger whose handler drops every record. Library code uses it
// when the caller supplies no logger.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
