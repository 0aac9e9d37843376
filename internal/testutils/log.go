package testutils

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// MockHandler is a slog.Handler recording every handled record.
type MockHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

// Enabled implements Handler.Enabled.
func (h *MockHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements Handler.Handle.
func (h *MockHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record.Clone())
	return nil
}

// WithAttrs implements Handler.WithAttrs. Attributes are not recorded.
func (h *MockHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

// WithGroup implements Handler.WithGroup. Groups are not recorded.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}

// Has returns true if a record with the given level and message was handled.
func (h *MockHandler) Has(level slog.Level, msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.ContainsFunc(h.records, func(r slog.Record) bool {
		return r.Level == level && r.Message == msg
	})
}
