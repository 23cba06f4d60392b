package httpapi

import (
	"context"
	"sync"
	"testing"

	"autodl-console/internal/apiclient"
	"autodl-console/internal/audit"
	"autodl-console/internal/channel"
	"autodl-console/internal/credstore"
	"autodl-console/internal/events"
	"autodl-console/internal/guard"
	"autodl-console/internal/notify"
	"autodl-console/internal/token"
	"autodl-console/pkg/logger"

	"github.com/gin-gonic/gin"
)

// fakeUpstream stores the token it is told to issue, like the real client.
type fakeUpstream struct {
	store credstore.Store

	mu         sync.Mutex
	issue      string
	loginErr   error
	recoverMsg string
	recoverErr error
	stats      apiclient.DashboardStats
	logins     int
}

func (f *fakeUpstream) ObtainToken(ctx context.Context, username, password string) (apiclient.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return apiclient.TokenPair{}, f.loginErr
	}
	pair := apiclient.TokenPair{Access: f.issue, Refresh: "refresh-" + username}
	_ = f.store.Set(ctx, credstore.KeyAccessToken, pair.Access)
	_ = f.store.Set(ctx, credstore.KeyRefreshToken, pair.Refresh)
	return pair, nil
}

func (f *fakeUpstream) RecoverAdmin(context.Context, string, string, string) (string, error) {
	return f.recoverMsg, f.recoverErr
}

func (f *fakeUpstream) Hello(context.Context) (string, error) {
	return "Hello, operator!", nil
}

func (f *fakeUpstream) DashboardStats(context.Context) (apiclient.DashboardStats, error) {
	return f.stats, nil
}

type fixture struct {
	router *gin.Engine
	store  *credstore.MemoryStore
	pipe   *channel.Pipe
	ch     *channel.Channel
	toasts *notify.Store
	dist   *events.Distributor
	api    *fakeUpstream
	audits *audit.MemoryRepo
}

func newFixture(t *testing.T, access string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	store := credstore.NewMemoryStore()
	if access != "" {
		_ = store.Set(context.Background(), credstore.KeyAccessToken, access)
		_ = store.Set(context.Background(), credstore.KeyRefreshToken, "refresh")
	}

	pipe := channel.NewPipe()
	ch := channel.New(pipe, channel.Options{Logger: log})
	t.Cleanup(func() { _ = ch.Close() })

	toasts := notify.NewStore()
	dist := events.NewDistributor(ch, toasts, events.Options{Logger: log})
	repo := audit.NewMemoryRepo()
	auditSvc := audit.NewService(repo, "test")
	codec := token.NewCodec()
	g := guard.New(store, guard.Options{Codec: codec, Logger: log, Audit: auditSvc})

	api := &fakeUpstream{store: store}
	h := &Handlers{
		Session: &Session{
			Store:       store,
			Distributor: dist,
			Channel:     ch,
			Notify:      toasts,
			Audit:       auditSvc,
			Codec:       codec,
			Logger:      log,
		},
		API:         api,
		Notify:      toasts,
		Source:      ch,
		EventName:   events.BotUpdate,
		LoginPath:   g.LoginPath(),
		DefaultPath: g.DefaultPath(),
	}

	r := gin.New()
	r.Use(logger.Middleware(log))
	r.GET("/notification", h.GetNotification)
	r.POST("/notification/dismiss", h.DismissNotification)
	r.POST("/logout", h.Logout)
	public := g.Middleware(guard.Public)
	r.GET("/login", public, h.PublicPage("Login"))
	r.POST("/login", public, h.Login)
	r.POST("/secret-admin-recovery", public, h.RecoverAdmin)
	r.GET("/", h.Root)
	for _, p := range Pages {
		r.GET(p.Path, g.Middleware(Layout, p.Require), h.Page(p))
	}
	r.GET(AuditPath, g.Middleware(Layout, guard.AdminOnly), h.AuditTrail)
	r.GET("/events/stream", g.Middleware(Layout), h.Stream(0))
	r.NoRoute(h.NotFound)

	return &fixture{
		router: r,
		store:  store,
		pipe:   pipe,
		ch:     ch,
		toasts: toasts,
		dist:   dist,
		api:    api,
		audits: repo,
	}
}

func (f *fixture) hasToken(t *testing.T) bool {
	t.Helper()
	_, ok, err := f.store.Get(context.Background(), credstore.KeyAccessToken)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	return ok
}

func (f *fixture) auditTypes() []audit.EventType {
	var out []audit.EventType
	for _, e := range f.audits.Events() {
		out = append(out, e.Type)
	}
	return out
}
