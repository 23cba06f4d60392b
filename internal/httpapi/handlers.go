package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"autodl-console/internal/apiclient"
	"autodl-console/internal/audit"
	"autodl-console/internal/events"
	"autodl-console/internal/guard"
	"autodl-console/internal/notify"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Upstream is the part of the REST client the handlers use.
type Upstream interface {
	ObtainToken(ctx context.Context, username, password string) (apiclient.TokenPair, error)
	RecoverAdmin(ctx context.Context, secretKey, username, password string) (string, error)
	Hello(ctx context.Context) (string, error)
	DashboardStats(ctx context.Context) (apiclient.DashboardStats, error)
}

var _ Upstream = (*apiclient.Client)(nil)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal packages, return JSON.
type Handlers struct {
	Session *Session
	API     Upstream
	Notify  *notify.Store
	Source  events.Source

	// EventName is the progress event streamed to views.
	EventName string

	LoginPath   string
	DefaultPath string

	Metrics *metrics.Metrics
}

type viewModel struct {
	Page         string              `json:"page"`
	User         *userView           `json:"user,omitempty"`
	Role         string              `json:"role,omitempty"`
	Notification notify.Notification `json:"notification"`
	Data         any                 `json:"data,omitempty"`
	Events       *events.State       `json:"events,omitempty"`
}

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Page renders the view model of a protected page. Upstream data is
// best-effort: a failed call is logged and the view renders without it.
func (h *Handlers) Page(p Page) gin.HandlerFunc {
	return func(c *gin.Context) {
		vm := viewModel{Page: p.Name, Notification: h.Notify.Current()}
		if s, err := guard.SessionFrom(c.Request.Context()); err == nil {
			vm.Role = s.Role
			vm.User = &userView{ID: s.Claims.UserID(), Username: s.Claims.Username(), Email: s.Claims.Email()}
		}
		if data, err := h.pageData(c.Request.Context(), p.Name); err != nil {
			logger.FromGin(c).Warn("page data unavailable", "page", p.Name, "err", err)
		} else {
			vm.Data = data
		}
		if p.Name == "AutoDownloadBot" && h.Session != nil && h.Session.Distributor != nil {
			st := h.Session.Distributor.State()
			vm.Events = &st
		}
		c.JSON(http.StatusOK, vm)
	}
}

func (h *Handlers) pageData(ctx context.Context, name string) (any, error) {
	if h.API == nil {
		return nil, nil
	}
	switch name {
	case "HomeView":
		return h.API.DashboardStats(ctx)
	case "Profile":
		msg, err := h.API.Hello(ctx)
		if err != nil {
			return nil, err
		}
		return gin.H{"message": msg}, nil
	default:
		return nil, nil
	}
}

// PublicPage renders a public view.
func (h *Handlers) PublicPage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, viewModel{Page: name, Notification: h.Notify.Current()})
	}
}

// Root sends the bare layout path to the default view.
func (h *Handlers) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, h.DefaultPath)
}

func (h *Handlers) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, viewModel{Page: "NotFound", Notification: h.Notify.Current()})
}

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// Login exchanges credentials for tokens and starts the session.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	ctx := c.Request.Context()

	if _, err := h.API.ObtainToken(ctx, req.Username, req.Password); err != nil {
		msg, status := upstreamFailure(err, "Login failed.")
		if status == http.StatusUnauthorized || status == http.StatusBadRequest {
			status = http.StatusUnauthorized
		}
		logger.FromGin(c).Info("login failed", "username", req.Username, "err", err)
		h.Notify.Error(msg, "Login Failed")
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}

	h.Session.Started(ctx)
	h.redirect(c, h.DefaultPath)
}

type recoveryRequest struct {
	SecretKey string `form:"secret_key" json:"secret_key" binding:"required"`
	Username  string `form:"username" json:"username" binding:"required"`
	Password  string `form:"password" json:"password" binding:"required"`
}

// RecoverAdmin forwards the admin recovery form upstream.
func (h *Handlers) RecoverAdmin(c *gin.Context) {
	var req recoveryRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "secret_key, username and password required"})
		return
	}
	msg, err := h.API.RecoverAdmin(c.Request.Context(), req.SecretKey, req.Username, req.Password)
	if err != nil {
		emsg, status := upstreamFailure(err, "Recovery failed.")
		logger.FromGin(c).Warn("admin recovery failed", "username", req.Username, "status", status)
		h.Notify.Error(emsg, "Recovery Failed")
		c.AbortWithStatusJSON(status, gin.H{"error": emsg})
		return
	}
	h.Notify.Success(msg, "Admin Recovered")
	c.JSON(http.StatusOK, gin.H{"message": msg, "redirect": h.LoginPath})
}

func (h *Handlers) Logout(c *gin.Context) {
	if err := h.Session.Logout(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	h.redirect(c, h.LoginPath)
}

// AuditTrail lists the profile's recent session events.
func (h *Handlers) AuditTrail(c *gin.Context) {
	if h.Session == nil || h.Session.Audit == nil {
		c.JSON(http.StatusOK, gin.H{"events": []audit.Event{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	evs, err := h.Session.Audit.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("audit query failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit trail unavailable"})
		return
	}
	if evs == nil {
		evs = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

func (h *Handlers) GetNotification(c *gin.Context) {
	c.JSON(http.StatusOK, h.Notify.Current())
}

func (h *Handlers) DismissNotification(c *gin.Context) {
	h.Notify.Dismiss()
	c.JSON(http.StatusOK, h.Notify.Current())
}

// redirect answers a form post with 303 and a JSON client with the target.
func (h *Handlers) redirect(c *gin.Context, target string) {
	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		c.JSON(http.StatusOK, gin.H{"redirect": target})
		return
	}
	c.Redirect(http.StatusSeeOther, target)
}

// upstreamFailure maps an upstream error to a message and a status for the
// console's own response.
func upstreamFailure(err error, fallback string) (string, int) {
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = fallback
		}
		if se.StatusCode >= 500 {
			return msg, http.StatusBadGateway
		}
		return msg, se.StatusCode
	}
	return fallback, http.StatusBadGateway
}
