package goIdentity

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
// Emit must not block indefinitely.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink = audit.JSONLinesSink

// SlogSink logs audit events through a *slog.Logger.
type SlogSink = audit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return audit.NewJSONLinesSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
