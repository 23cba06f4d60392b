package notify

import (
	"context"
	"log/slog"

	"autodl-console/pkg/logger"
)

// Alert is a one-shot message the operator must acknowledge.
type Alert struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Severity Severity `json:"severity"`
}

type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(ctx context.Context, a Alert)

func (f AlertFunc) Alert(ctx context.Context, a Alert) { f(ctx, a) }

// LogAlerter writes alerts to the log. It is the fallback when no view is
// open to show them.
type LogAlerter struct {
	Log *slog.Logger
}

func (l LogAlerter) Alert(ctx context.Context, a Alert) {
	log := l.Log
	if log == nil {
		log = logger.From(ctx)
	}
	log.Warn("alert", "title", a.Title, "body", a.Body, "severity", a.Severity)
}
