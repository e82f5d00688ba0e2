package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/config"
	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
	"github.com/roach88/autosort/internal/store"
)

// closeTimeout bounds how long Close waits for pending sorts.
const closeTimeout = 30 * time.Second

// profileState is the State the CLI owns: the active profile and the
// plugin lists come from command input, install paths from the config.
type profileState struct {
	cfg config.Config

	mu        sync.Mutex
	autoSort  bool
	active    string
	loadOrder []string
	enabled   []string
}

var _ autosort.State = (*profileState)(nil)

func newProfileState(cfg config.Config) *profileState {
	return &profileState{cfg: cfg, autoSort: cfg.AutoSort}
}

func (s *profileState) AutoSort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSort
}

func (s *profileState) ActiveProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *profileState) GamePath(game string) string {
	return s.cfg.GamePath(game)
}

func (s *profileState) LoadOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loadOrder...)
}

func (s *profileState) EnabledPlugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.enabled...)
}

func (s *profileState) setActive(game string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = game
}

func (s *profileState) setPlugins(p Plugins) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadOrder = append([]string(nil), p.LoadOrder...)
	s.enabled = append([]string(nil), p.Enabled...)
}

func (s *profileState) setAutoSort(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSort = on
}

// app is one wired autosort service with its hosts and optional history.
type app struct {
	cfg      config.Config
	state    *profileState
	store    *store.Store // nil when persistence is disabled
	recorder *store.Recorder
	console  *consoleHost
	metrics  *metrics.Metrics
	service  *autosort.Service
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// Out receives notifications and dialogs when not nil.
	Out io.Writer

	// Expand runs notification actions on Out.
	Expand bool

	// Log sends notifications to the default logger.
	Log bool

	// Registry registers metrics when not nil.
	Registry prometheus.Registerer

	// Factory builds engines. Nil uses the YAML engine.
	Factory rules.Factory
}

// commandContext returns the command's context, or Background when the
// command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadConfig reads the config named by the global flags.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newApp wires the service for cfg. The caller must Close the app.
func newApp(cfg config.Config, o appOptions) (*app, error) {
	a := &app{
		cfg:   cfg,
		state: newProfileState(cfg),
	}

	var hosts []autosort.Host
	if o.Out != nil {
		a.console = newConsoleHost(o.Out, o.Expand)
		hosts = append(hosts, a.console)
	}
	if o.Log {
		hosts = append(hosts, logHost{})
	}

	if cfg.Database != "" {
		slog.Debug("opening database", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		a.store = st
		a.recorder = store.NewRecorder(st, a.state.ActiveProfile)
		hosts = append(hosts, a.recorder)
	}

	if o.Registry != nil {
		a.metrics = metrics.New(o.Registry)
	}

	factory := o.Factory
	if factory == nil {
		factory = rules.YAMLFactory
	}

	opts := cfg.Options()
	opts.Metrics = a.metrics
	a.service = autosort.NewService(autosort.Tee(hosts...), a.state, factory, opts)
	return a, nil
}

// activate makes game the active profile and waits for its session.
func (a *app) activate(ctx context.Context, game string) (*autosort.Session, error) {
	a.state.setActive(game)
	sess, err := a.service.ProfileActivated(ctx, game).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// sort requests a sort, waits for it and links the result to history.
func (a *app) sort(ctx context.Context, manual bool) (autosort.SortOutcome, error) {
	out, err := a.service.RequestSort(ctx, manual).Wait(ctx)
	if err != nil {
		return autosort.SortOutcome{}, err
	}
	if a.recorder != nil {
		a.recorder.Link(ctx, out)
	}
	return out, nil
}

// linkLater links the outcome of f to history once it settles, for sorts
// nobody waits on.
func (a *app) linkLater(f *autosort.Future[autosort.SortOutcome]) {
	if a.recorder == nil {
		return
	}
	go func() {
		out, err := f.Wait(context.Background())
		if err != nil {
			return
		}
		a.recorder.Link(context.Background(), out)
	}()
}

// Close waits for pending work and closes the store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.service.Wait(ctx); err != nil {
		slog.Warn("pending work did not settle before close", "error", err)
	}
	if a.store == nil {
		return nil
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
