package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"autodl-console/internal/channel"
	"autodl-console/internal/guard"
	"autodl-console/internal/httpapi"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	guard     *guard.Guard
	handlers  *httpapi.Handlers
	registry  *prometheus.Registry
	channel   *channel.Channel
	db        *sql.DB
	pipe      *channel.Pipe
	eventName string
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal packages.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers
	g := d.guard

	r.GET("/healthz", func(c *gin.Context) {
		if d.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
				logger.FromGin(c).Error("healthz: postgres unavailable", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "channel": d.channel.State()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": d.channel.State()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))

	// Toast and logout work in any session state.
	r.GET("/notification", h.GetNotification)
	r.POST("/notification/dismiss", h.DismissNotification)
	r.POST("/logout", h.Logout)

	// Public views.
	public := g.Middleware(guard.Public)
	r.GET(g.LoginPath(), public, h.PublicPage("Login"))
	r.POST(g.LoginPath(), public, h.Login)
	r.GET("/secret-admin-recovery", public, h.PublicPage("SecretAdmin"))
	r.POST("/secret-admin-recovery", public, h.RecoverAdmin)

	// Protected layout.
	r.GET("/", h.Root)
	for _, p := range httpapi.Pages {
		r.GET(p.Path, g.Middleware(httpapi.Layout, p.Require), h.Page(p))
	}
	r.GET(httpapi.AuditPath, g.Middleware(httpapi.Layout, guard.AdminOnly), h.AuditTrail)
	r.GET("/events/stream", g.Middleware(httpapi.Layout), h.Stream(0))

	if d.pipe != nil {
		r.POST("/dev/events", devEvents(d.pipe, d.eventName))
	}

	r.NoRoute(h.NotFound)
}

// devEvents injects a progress event into the in-process transport.
func devEvents(p *channel.Pipe, event string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
		if err != nil || !json.Valid(body) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON payload"})
			return
		}
		if err := p.Send(event, json.RawMessage(body)); err != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}
