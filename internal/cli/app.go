package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/access"
	"github.com/code-and-cash/cashctl/internal/admin"
	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/config"
	"github.com/code-and-cash/cashctl/internal/log"
	"github.com/code-and-cash/cashctl/internal/market"
	"github.com/code-and-cash/cashctl/internal/session"
)

// app bundles everything a command needs. It is built per invocation and
// closed when the command returns.
type app struct {
	dir    string
	cfg    *config.Config
	logger *log.Logger
	store  *session.Store
	client *api.Client

	auth         *market.Auth
	tasks        *market.Tasks
	applications *market.Applications
	admin        *admin.Client
	gate         *access.Gate
	nav          *cliNavigator
}

// loadConfig resolves the config directory and applies flag overrides.
func loadConfig() (string, *config.Config, error) {
	dir := configDirFlag
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return "", nil, err
		}
		dir = d
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return "", nil, err
	}
	if apiURLFlag != "" {
		cfg.API.BaseURL = apiURLFlag
	}
	if timeoutFlag > 0 {
		cfg.API.TimeoutMs = int(timeoutFlag.Milliseconds())
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	dir, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(dir)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	store, err := session.NewStore(cfg.SessionPath(dir))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	nav := &cliNavigator{w: cmd.ErrOrStderr()}
	client := api.NewClient(store, api.Options{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.Timeout(),
		Logger:        logger,
		UserAgent:     "cashctl/" + version,
		OnAuthFailure: access.AuthFailureHandler(store, nav, logger),
	})

	a := &app{
		dir:          dir,
		cfg:          cfg,
		logger:       logger,
		store:        store,
		client:       client,
		auth:         market.NewAuth(client, store, logger),
		tasks:        market.NewTasks(client),
		applications: market.NewApplications(client),
		admin:        admin.New(client),
		nav:          nav,
	}
	a.gate = access.NewGate(store, access.CheckerFunc(a.me), nav, access.Options{
		TrustLocalRoleClaim: cfg.Access.TrustLocalRoleClaim,
		TrustWindow:         cfg.TrustWindow(),
		ConfirmTimeout:      cfg.ConfirmTimeout(),
		Logger:              logger,
	})
	return a, nil
}

// Close waits for background role confirmations and releases the store.
func (a *app) Close() error {
	a.gate.Wait()
	return a.store.Close()
}

func (a *app) me(ctx context.Context) (session.User, error) {
	u, err := a.auth.Me(ctx)
	if err != nil {
		return session.User{}, err
	}
	return u.SessionUser(), nil
}

// requireRole runs the access gate for commands behind a role.
func (a *app) requireRole(ctx context.Context, role session.Role) error {
	_, err := a.gate.Check(ctx, role)
	return err
}

// withApp opens the app, runs fn and closes the app again.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// withSession is withApp for commands that need any signed-in user.
func withSession(cmd *cobra.Command, fn func(a *app) error) error {
	return withApp(cmd, func(a *app) error {
		if !a.store.IsAuthenticated() {
			a.nav.ToLogin("login required")
			return api.ErrLoginRequired
		}
		return fn(a)
	})
}

// withAdmin is withApp behind the admin role gate.
func withAdmin(cmd *cobra.Command, fn func(a *app) error) error {
	return withApp(cmd, func(a *app) error {
		if err := a.requireRole(cmd.Context(), session.RoleAdmin); err != nil {
			return err
		}
		return fn(a)
	})
}

// cliNavigator turns gate and auth-failure redirects into hints on stderr.
// Each kind of hint is printed at most once per invocation.
type cliNavigator struct {
	w io.Writer

	loginOnce  sync.Once
	deniedOnce sync.Once
}

func (n *cliNavigator) ToLogin(reason string) {
	n.loginOnce.Do(func() {
		fmt.Fprintf(n.w, "%s. Run 'cashctl login' to sign in.\n", capitalize(reason))
	})
}

func (n *cliNavigator) Denied(required session.Role) {
	n.deniedOnce.Do(func() {
		fmt.Fprintf(n.w, "This command requires the %s role.\n", required)
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
