package authcore

import (
	"io"

	"github.com/MrEthical07/authcore/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one immutable decision record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher. An error
// returned by Emit is logged and counted; it never alters a decision.
type AuditSink = audit.Sink

// AuditStatus is the outcome class of an [AuditEvent].
type AuditStatus = audit.Status

const (
	AuditSuccess = audit.StatusSuccess
	AuditFailure = audit.StatusFailure
	AuditPending = audit.StatusPending
)

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	ZapSink        = audit.ZapSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs successes at Info and everything else at Warn.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return audit.NewZapSink(logger)
}
