package otpauth

import (
	"io"

	"go.uber.org/zap"

	"github.com/aircare/otpauth/internal/audit"
)

// Audit event types emitted by the engine.
const (
	AuditSessionCommit       = "session_commit"
	AuditSessionClear        = "session_clear"
	AuditSessionCorruptReset = "session_corrupt_reset"
	AuditChallengeIssue      = "challenge_issue"
	AuditChallengeVerify     = "challenge_verify"
	AuditGuardDenied         = "guard_denied"
)

// AuditEvent is one security-relevant record. ClientID holds the browser client,
// never a phone number, code or token.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events into a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// ZapSink logs each event through zap.
type ZapSink = audit.ZapSink

// NewZapSink returns a [ZapSink]. A nil logger discards events.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
