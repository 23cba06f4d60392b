// Package guard decides, on every navigation, whether the operator may open a
// view, must sign in again, or should be sent to the default view.
//
// The guard reads only local data: the stored access token and the route's
// requirement. It never calls the network. It is a UX gate, not a security
// boundary; the upstream API verifies tokens on every request.
package guard

import (
	"context"
	"log/slog"
	"path"
	"time"

	"autodl-console/internal/credstore"
	"autodl-console/internal/token"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"
)

const (
	DefaultLoginPath   = "/login"
	DefaultDefaultPath = "/dashboard"
)

// AuditLogger receives forced logouts and role denials. Failures are logged
// and otherwise ignored.
type AuditLogger interface {
	LogForcedLogout(ctx context.Context, path, reason string) error
	LogRoleDenied(ctx context.Context, userID, role, path string) error
}

type Options struct {
	LoginPath   string
	DefaultPath string

	Codec   *token.Codec
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Audit   AuditLogger
}

type Guard struct {
	store credstore.Store
	codec *token.Codec

	loginPath   string
	defaultPath string

	log     *slog.Logger
	metrics *metrics.Metrics
	audit   AuditLogger
}

func New(store credstore.Store, opts Options) *Guard {
	g := &Guard{
		store:       store,
		codec:       opts.Codec,
		loginPath:   opts.LoginPath,
		defaultPath: opts.DefaultPath,
		log:         logger.OrDefault(opts.Logger),
		metrics:     opts.Metrics,
		audit:       opts.Audit,
	}
	if g.codec == nil {
		g.codec = token.NewCodec()
	}
	if g.loginPath == "" {
		g.loginPath = DefaultLoginPath
	}
	if g.defaultPath == "" {
		g.defaultPath = DefaultDefaultPath
	}
	return g
}

func (g *Guard) LoginPath() string   { return g.loginPath }
func (g *Guard) DefaultPath() string { return g.defaultPath }

// Decide is the pure decision: no store access, no side effects.
func Decide(req Requirement, target string, sess Session, loginPath, defaultPath string) Decision {
	if !req.RequiresAuth {
		if samePath(target, loginPath) && sess.Valid() {
			return Decision{Action: ActionRedirectDefault, Target: defaultPath, Reason: ReasonAlreadySignedIn, Session: sess}
		}
		return Decision{Action: ActionAllow, Reason: ReasonPublic, Session: sess}
	}

	if !sess.Present {
		return Decision{Action: ActionRedirectLogin, Target: loginPath, Reason: ReasonTokenMissing, Session: sess}
	}
	if sess.Expired {
		return Decision{Action: ActionRedirectLogin, Target: loginPath, Reason: ReasonTokenExpired, Session: sess}
	}
	if !req.Permits(sess.Role) {
		return Decision{Action: ActionRedirectDefault, Target: defaultPath, Reason: ReasonRoleNotPermitted, Session: sess}
	}
	return Decision{Action: ActionAllow, Reason: ReasonAuthorized, Session: sess}
}

// Authorize evaluates a navigation to target and applies its side effects:
// a forced logout clears both stored credentials before returning.
func (g *Guard) Authorize(ctx context.Context, req Requirement, target string) Decision {
	raw, ok, err := g.store.Get(ctx, credstore.KeyAccessToken)
	if err != nil {
		g.log.Warn("guard: credential read failed, treating as signed out", "err", err)
		raw, ok = "", false
	}
	if !ok {
		raw = ""
	}

	sess := SessionFromToken(g.codec, raw, g.now())
	d := Decide(req, target, sess, g.loginPath, g.defaultPath)

	if d.ForcesLogout() {
		if err := credstore.Clear(ctx, g.store); err != nil {
			g.log.Error("guard: clearing credentials failed", "err", err)
		}
		if g.audit != nil && sess.Present {
			if err := g.audit.LogForcedLogout(ctx, target, d.Reason); err != nil {
				g.log.Warn("guard: audit append failed", "err", err)
			}
		}
	}
	if d.Reason == ReasonRoleNotPermitted && g.audit != nil {
		if err := g.audit.LogRoleDenied(ctx, sess.Claims.UserID(), sess.Role, target); err != nil {
			g.log.Warn("guard: audit append failed", "err", err)
		}
	}

	g.metrics.GuardDecision(string(d.Action), d.Reason)
	attrs := []any{"path", target, "action", d.Action, "reason", d.Reason}
	if d.Action == ActionAllow {
		g.log.Debug("guard decision", attrs...)
	} else {
		g.log.Info("guard decision", append(attrs, "target", d.Target, "role", sess.Role)...)
	}
	return d
}

func (g *Guard) now() time.Time {
	if g.codec.Now != nil {
		return g.codec.Now()
	}
	return time.Now()
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return path.Clean(a) == path.Clean(b)
}
