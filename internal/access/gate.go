// Package access decides whether the current session may enter a
// role-restricted view.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/log"
	"github.com/code-and-cash/cashctl/internal/session"
)

// DefaultConfirmTimeout bounds a server role check.
const DefaultConfirmTimeout = 5 * time.Second

// Decision is the outcome of a check.
type Decision int

const (
	LoginRequired Decision = iota
	Granted
	Denied
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "login_required"
	}
}

// Source says which evidence decided a grant.
type Source string

const (
	SourceNone   Source = ""
	SourceLocal  Source = "local"  // cached role claim, confirmed in background
	SourceCache  Source = "cache"  // cached role claim within the trust window
	SourceServer Source = "server" // fresh server check
)

// Result is returned by Check.
type Result struct {
	Decision Decision
	Source   Source
	User     *session.User
}

// Navigator moves the user when access is refused.
type Navigator interface {
	ToLogin(reason string)
	Denied(required session.Role)
}

// Checker asks the backend who the token belongs to.
type Checker interface {
	Me(ctx context.Context) (session.User, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) (session.User, error)

// Me calls f.
func (f CheckerFunc) Me(ctx context.Context) (session.User, error) { return f(ctx) }

// SessionStore is the part of the session store the gate needs.
type SessionStore interface {
	Read() session.Session
	Clear() error
	UpdateUser(user session.User) error
}

// Options configures a Gate.
type Options struct {
	// TrustLocalRoleClaim grants on the cached role immediately and
	// confirms with the server in the background.
	TrustLocalRoleClaim bool
	// TrustWindow is how long after login the cached role is accepted
	// without a server check. Zero always checks.
	TrustWindow    time.Duration
	ConfirmTimeout time.Duration
	Logger         *log.Logger
	Now            func() time.Time
}

// Gate guards role-restricted views.
type Gate struct {
	store   SessionStore
	checker Checker
	nav     Navigator
	opts    Options

	confirms sync.WaitGroup
}

// NewGate creates a gate.
func NewGate(store SessionStore, checker Checker, nav Navigator, opts Options) *Gate {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{store: store, checker: checker, nav: nav, opts: opts}
}

// Check decides whether the session may enter a view requiring role.
// A refused check returns api.ErrLoginRequired or api.ErrAccessDenied
// alongside the result.
func (g *Gate) Check(ctx context.Context, required session.Role) (Result, error) {
	sess := g.store.Read()
	if sess.IsZero() {
		g.logDenied(sess, required, "no_session", nil)
		g.nav.ToLogin("login required")
		return Result{Decision: LoginRequired}, api.ErrLoginRequired
	}

	claims, parsed := inspectToken(sess.Token)
	now := g.opts.Now()
	if parsed && claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		_ = g.store.Clear()
		g.log(log.LogEvent{Event: log.EventSessionCleared, SessionID: sess.ID, Reason: "token_expired"})
		g.nav.ToLogin("session expired")
		return Result{Decision: LoginRequired}, api.ErrLoginRequired
	}

	if sess.Role() == required {
		if g.opts.TrustLocalRoleClaim {
			g.confirmInBackground(sess, required)
			return g.grant(sess, sess.User, required, SourceLocal), nil
		}
		issued := sess.SavedAt
		if parsed && claims.IssuedAt != nil {
			issued = claims.IssuedAt.Time
		}
		if g.opts.TrustWindow > 0 && now.Sub(issued) < g.opts.TrustWindow {
			return g.grant(sess, sess.User, required, SourceCache), nil
		}
	}

	return g.checkServer(ctx, sess, required)
}

func (g *Gate) checkServer(ctx context.Context, sess session.Session, required session.Role) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ConfirmTimeout)
	defer cancel()

	user, err := g.checker.Me(ctx)
	if err != nil {
		if api.IsAuthFailure(err) {
			// The client's auth failure hook has already cleared the
			// session and sent the user to login.
			g.logDenied(sess, required, "auth_failure", err)
			return Result{Decision: LoginRequired}, api.ErrLoginRequired
		}
		g.logDenied(sess, required, "confirm_failed", err)
		g.nav.Denied(required)
		return Result{Decision: Denied}, fmt.Errorf("%w: %w", api.ErrAccessDenied, err)
	}

	if err := g.store.UpdateUser(user); err != nil {
		g.log(log.LogEvent{Event: log.EventAccessConfirmFailed, SessionID: sess.ID, UserID: user.ID, Reason: "store_update", Error: err.Error()})
	}

	if user.Role != required {
		g.logDenied(sess, required, "role_mismatch", nil)
		g.nav.Denied(required)
		return Result{Decision: Denied, Source: SourceServer, User: &user}, api.ErrAccessDenied
	}
	return g.grant(sess, &user, required, SourceServer), nil
}

// confirmInBackground re-checks a locally granted role. A failed or
// contradicting check is logged; the grant stands, even on 401/403, so the
// client's auth failure hook is kept out of this call.
func (g *Gate) confirmInBackground(sess session.Session, required session.Role) {
	g.confirms.Add(1)
	go func() {
		defer g.confirms.Done()
		ctx, cancel := context.WithTimeout(api.WithoutAuthHook(context.Background()), g.opts.ConfirmTimeout)
		defer cancel()

		user, err := g.checker.Me(ctx)
		switch {
		case err != nil:
			ev := log.LogEvent{
				Event:     log.EventAccessConfirmFailed,
				SessionID: sess.ID,
				Role:      string(required),
				Kind:      api.Kind(err),
				Error:     err.Error(),
			}
			if api.IsAuthFailure(err) {
				ev.Reason = "auth_failure"
			}
			g.log(ev)
		case user.Role != required:
			g.log(log.LogEvent{
				Event:     log.EventAccessConfirmFailed,
				SessionID: sess.ID,
				UserID:    user.ID,
				Role:      string(user.Role),
				Reason:    "role_mismatch",
			})
			_ = g.store.UpdateUser(user)
		default:
			_ = g.store.UpdateUser(user)
		}
	}()
}

// Wait blocks until every background confirmation has finished.
func (g *Gate) Wait() {
	g.confirms.Wait()
}

func (g *Gate) grant(sess session.Session, user *session.User, required session.Role, src Source) Result {
	g.log(log.LogEvent{
		Event:     log.EventAccessGranted,
		SessionID: sess.ID,
		UserID:    user.ID,
		Role:      string(required),
		Reason:    string(src),
	})
	return Result{Decision: Granted, Source: src, User: user}
}

func (g *Gate) logDenied(sess session.Session, required session.Role, reason string, err error) {
	ev := log.LogEvent{Event: log.EventAccessDenied, SessionID: sess.ID, Role: string(required), Reason: reason}
	if sess.User != nil {
		ev.UserID = sess.User.ID
	}
	if err != nil {
		ev.Kind = api.Kind(err)
		ev.Error = err.Error()
	}
	g.log(ev)
}

func (g *Gate) log(ev log.LogEvent) {
	if g.opts.Logger == nil {
		return
	}
	_ = g.opts.Logger.Append(ev)
}

// inspectToken reads exp and iat without verifying the signature. The
// client holds no key; the server stays the authority.
func inspectToken(token string) (jwt.RegisteredClaims, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return jwt.RegisteredClaims{}, false
	}
	return claims, true
}
