package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"autodl-console/internal/audit"
	"autodl-console/internal/credstore"
	"autodl-console/internal/token"
	"autodl-console/internal/token/tokentest"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var now = time.Unix(1700000000, 0)

func newGuard(t *testing.T, access string) (*Guard, *credstore.MemoryStore, *audit.MemoryRepo, *metrics.Metrics) {
	t.Helper()
	store := credstore.NewMemoryStore()
	ctx := context.Background()
	if access != "" {
		_ = store.Set(ctx, credstore.KeyAccessToken, access)
	}
	_ = store.Set(ctx, credstore.KeyRefreshToken, "refresh")

	codec := token.NewCodec()
	codec.Now = func() time.Time { return now }
	repo := audit.NewMemoryRepo()
	m := metrics.New(prometheus.NewRegistry())
	g := New(store, Options{
		Codec:   codec,
		Logger:  logger.Discard(),
		Metrics: m,
		Audit:   audit.NewService(repo, "default"),
	})
	return g, store, repo, m
}

func hasCreds(t *testing.T, s credstore.Store) (access, refresh bool) {
	t.Helper()
	ctx := context.Background()
	_, access, _ = s.Get(ctx, credstore.KeyAccessToken)
	_, refresh, _ = s.Get(ctx, credstore.KeyRefreshToken)
	return access, refresh
}

func TestAuthorize(t *testing.T) {
	valid := func(t *testing.T, role string) string { return tokentest.Access(t, role, now.Add(time.Hour)) }
	expired := func(t *testing.T) string { return tokentest.Access(t, RoleAdmin, now.Add(-time.Second)) }

	cases := []struct {
		name      string
		token     func(t *testing.T) string
		req       Requirement
		target    string
		action    Action
		dest      string
		reason    string
		wantClear bool
	}{
		{"public no token", nil, Public, "/secret-admin-recovery", ActionAllow, "", ReasonPublic, false},
		{"login no token", nil, Public, "/login", ActionAllow, "", ReasonPublic, false},
		{"login valid token", func(t *testing.T) string { return valid(t, RoleUser) }, Public, "/login", ActionRedirectDefault, "/dashboard", ReasonAlreadySignedIn, false},
		{"login expired token", expired, Public, "/login", ActionAllow, "", ReasonPublic, false},
		{"public other path valid token", func(t *testing.T) string { return valid(t, RoleUser) }, Public, "/secret-admin-recovery", ActionAllow, "", ReasonPublic, false},
		{"protected no token", nil, Authenticated, "/dashboard", ActionRedirectLogin, "/login", ReasonTokenMissing, true},
		{"protected expired", expired, Authenticated, "/dashboard", ActionRedirectLogin, "/login", ReasonTokenExpired, true},
		{"protected malformed", func(*testing.T) string { return "garbage" }, Authenticated, "/profile", ActionRedirectLogin, "/login", ReasonTokenExpired, true},
		{"protected valid", func(t *testing.T) string { return valid(t, RoleUser) }, Authenticated, "/dashboard", ActionAllow, "", ReasonAuthorized, false},
		{"admin view as user", func(t *testing.T) string { return valid(t, RoleUser) }, Merge(Authenticated, AdminOnly), "/users", ActionRedirectDefault, "/dashboard", ReasonRoleNotPermitted, false},
		{"admin view as admin", func(t *testing.T) string { return valid(t, RoleAdmin) }, Merge(Authenticated, AdminOnly), "/settings", ActionAllow, "", ReasonAuthorized, false},
		{"admin view expired admin", expired, Merge(Authenticated, AdminOnly), "/users", ActionRedirectLogin, "/login", ReasonTokenExpired, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := ""
			if tc.token != nil {
				raw = tc.token(t)
			}
			g, store, _, _ := newGuard(t, raw)

			d := g.Authorize(context.Background(), tc.req, tc.target)
			if d.Action != tc.action || d.Target != tc.dest || d.Reason != tc.reason {
				t.Fatalf("got %+v, want action=%s target=%q reason=%s", d, tc.action, tc.dest, tc.reason)
			}

			access, refresh := hasCreds(t, store)
			if tc.wantClear && (access || refresh) {
				t.Fatalf("expected both credentials cleared, access=%v refresh=%v", access, refresh)
			}
			if !tc.wantClear && !refresh {
				t.Fatalf("credentials must be left alone")
			}
		})
	}
}

func TestAuthorizeExpiryBoundary(t *testing.T) {
	g, _, _, _ := newGuard(t, tokentest.Access(t, RoleUser, now))
	if d := g.Authorize(context.Background(), Authenticated, "/dashboard"); d.Action != ActionAllow {
		t.Fatalf("token expiring this second must still be allowed, got %+v", d)
	}

	g, _, _, _ = newGuard(t, tokentest.Access(t, RoleUser, now.Add(-time.Second)))
	if d := g.Authorize(context.Background(), Authenticated, "/dashboard"); d.Action != ActionRedirectLogin {
		t.Fatalf("expected redirect_login, got %+v", d)
	}
}

func TestAuthorizeRoleFallback(t *testing.T) {
	raw := tokentest.Mint(t, map[string]any{"exp": now.Add(time.Hour).Unix(), "user_role": RoleAdmin})
	g, _, _, _ := newGuard(t, raw)
	if d := g.Authorize(context.Background(), Merge(Authenticated, AdminOnly), "/users"); d.Action != ActionAllow {
		t.Fatalf("user_role should be honored, got %+v", d)
	}

	raw = tokentest.Mint(t, map[string]any{"exp": now.Add(time.Hour).Unix()})
	g, _, _, _ = newGuard(t, raw)
	d := g.Authorize(context.Background(), Merge(Authenticated, AdminOnly), "/users")
	if d.Action != ActionRedirectDefault || d.Session.Role != RoleUser {
		t.Fatalf("missing role should default to user, got %+v", d)
	}
}

func TestAuthorizeRecordsAuditAndMetrics(t *testing.T) {
	g, _, repo, m := newGuard(t, tokentest.Access(t, RoleUser, now.Add(-time.Minute)))
	g.Authorize(context.Background(), Authenticated, "/import-list")

	evs := repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeForcedLogout || evs[0].Path != "/import-list" {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
	if got := testutil.ToFloat64(m.GuardDecisions.WithLabelValues(string(ActionRedirectLogin), ReasonTokenExpired)); got != 1 {
		t.Fatalf("expected 1 redirect_login decision, got %v", got)
	}

	g, _, repo, _ = newGuard(t, tokentest.Access(t, RoleUser, now.Add(time.Minute)))
	g.Authorize(context.Background(), Merge(Authenticated, AdminOnly), "/settings")
	evs = repo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeRoleDenied || evs[0].ActorUserID != "7" {
		t.Fatalf("unexpected audit events: %+v", evs)
	}
}

func TestAuthorizeNoTokenSkipsForcedLogoutAudit(t *testing.T) {
	g, _, repo, _ := newGuard(t, "")
	g.Authorize(context.Background(), Authenticated, "/dashboard")
	if n := len(repo.Events()); n != 0 {
		t.Fatalf("expected no audit for a signed-out navigation, got %d", n)
	}
}

type failingStore struct{ credstore.MemoryStore }

func (*failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("backend down")
}

func TestAuthorizeStoreErrorIsSignedOut(t *testing.T) {
	g := New(&failingStore{}, Options{Logger: logger.Discard()})
	d := g.Authorize(context.Background(), Authenticated, "/dashboard")
	if d.Action != ActionRedirectLogin || d.Reason != ReasonTokenMissing {
		t.Fatalf("got %+v", d)
	}
}

func TestMerge(t *testing.T) {
	got := Merge(Authenticated, Requirement{})
	if !got.RequiresAuth || got.Roles != nil {
		t.Fatalf("child without meta should inherit auth: %+v", got)
	}
	got = Merge(Authenticated, AdminOnly)
	if !got.RequiresAuth || !got.Permits(RoleAdmin) || got.Permits(RoleUser) {
		t.Fatalf("unexpected merge: %+v", got)
	}
	got = Merge(Requirement{Roles: []string{"x"}}, Requirement{Roles: []string{"y"}})
	if got.Permits("x") || !got.Permits("y") {
		t.Fatalf("deepest roles should win: %+v", got)
	}
	if (Requirement{Roles: []string{}}).Permits(RoleAdmin) {
		t.Fatalf("empty role list admits nobody")
	}
}
