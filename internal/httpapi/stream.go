package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"autodl-console/internal/events"
	"autodl-console/internal/notify"
	"autodl-console/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	streamBuffer           = 32
	defaultStreamHeartbeat = 15 * time.Second
)

type streamEvent struct {
	name string
	data any
}

// Stream is the live view of one open page: it mounts an alert scope on the
// shared channel for as long as the client stays connected and forwards
// toast changes and alerts as server-sent events.
func (h *Handlers) Stream(heartbeat time.Duration) gin.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultStreamHeartbeat
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromGin(c)

		out := make(chan streamEvent, streamBuffer)
		push := func(name string, data any) {
			select {
			case out <- streamEvent{name: name, data: data}:
			default:
				log.Warn("stream: client too slow, dropping event", "event", name)
			}
		}

		scope := events.NewAlertScope(h.Source, notify.AlertFunc(func(_ context.Context, a notify.Alert) {
			push("alert", a)
		}), events.Options{Event: h.EventName, Logger: log, Metrics: h.Metrics})
		if err := scope.Mount(ctx); err != nil {
			log.Warn("stream: channel unavailable, waiting for reconnect", "err", err)
		}
		defer scope.Unmount()

		stopWatch := h.Notify.Watch(func(n notify.Notification) { push("notification", n) })
		defer stopWatch()

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.SSEvent("ready", gin.H{"notification": h.Notify.Current()})
		c.Writer.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case ev := <-out:
				c.SSEvent(ev.name, ev.data)
				return true
			case t := <-ticker.C:
				c.SSEvent("ping", t.Unix())
				return true
			}
		})
		log.Debug("stream closed")
	}
}
