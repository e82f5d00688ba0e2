package autosort

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
)

const tracerName = "github.com/roach88/autosort/internal/autosort"

var tracer = otel.Tracer(tracerName)

// Masterlist mirror defaults. The repository is a template on the game id.
const (
	DefaultMasterlistRepository = "https://github.com/loot/%s.git"
	DefaultMasterlistBranch     = "v0.10"
)

// MasterlistSource says where masterlists are mirrored from.
type MasterlistSource struct {
	// Repository is a URL template; "%s" is replaced by the game id.
	Repository string

	// Branch is the fixed branch tag to fetch.
	Branch string

	// Retries is how many times a failed update is retried.
	Retries int

	// RetryInterval is the pause between attempts.
	RetryInterval time.Duration
}

// URL returns the remote location for game.
func (s MasterlistSource) URL(game string) string {
	repo := s.Repository
	if repo == "" {
		repo = DefaultMasterlistRepository
	}
	if strings.Contains(repo, "%s") {
		return fmt.Sprintf(repo, game)
	}
	return repo
}

func (s MasterlistSource) branch() string {
	if s.Branch == "" {
		return DefaultMasterlistBranch
	}
	return s.Branch
}

// Session binds a game to its engine. Sessions are replaced, never mutated.
// Engine is nil when the game is unsupported or initialization failed.
type Session struct {
	Game     string
	GamePath string
	Engine   rules.Engine

	lists *ListCache
}

// Ready reports whether the session can sort.
func (s *Session) Ready() bool {
	return s != nil && s.Engine != nil
}

// Lists returns the session's list cache, nil when not Ready.
func (s *Session) Lists() *ListCache {
	if s == nil {
		return nil
	}
	return s.lists
}

// SessionManager owns the current session and serializes profile switches.
//
// Every RequestSession reserves the next slot in the session chain before
// it returns, then waits for the previous slot to settle before it looks at
// the game. Switches are therefore processed one by one in call order and
// the last call always determines the final session.
type SessionManager struct {
	host      Host
	factory   rules.Factory
	layout    Layout
	supported func(game string) bool
	source    MasterlistSource
	stat      StatFunc
	metrics   *metrics.Metrics

	sessions *chain[*Session]
}

// NewSessionManager creates a manager with an empty initial session.
func NewSessionManager(host Host, factory rules.Factory, opts Options) *SessionManager {
	return &SessionManager{
		host:      host,
		factory:   factory,
		layout:    opts.Layout,
		supported: opts.supportedFunc(),
		source:    opts.Masterlist,
		stat:      opts.Stat,
		metrics:   opts.Metrics,
		sessions:  newChain(&Session{}),
	}
}

// Current returns the future of the most recently requested session.
func (m *SessionManager) Current() *Future[*Session] {
	return m.sessions.head()
}

// RequestSession makes game the current session. Requesting the game that
// the previous session already holds returns that session unchanged, even
// when its initialization failed.
//
// The returned future always settles with a non-nil session; failures are
// reported through the host. ctx is detached from cancellation: a switch
// that started always completes.
func (m *SessionManager) RequestSession(ctx context.Context, game, gamePath string) *Future[*Session] {
	ctx = context.WithoutCancel(ctx)
	prev, slot := m.sessions.next()

	go func() {
		last := prev.value()
		if last.Game == game {
			slot.settle(last)
			return
		}
		slot.settle(m.initialize(ctx, game, gamePath))
	}()

	return slot
}

func (m *SessionManager) initialize(ctx context.Context, game, gamePath string) *Session {
	if !m.supported(game) {
		slog.Debug("game not supported, no engine session", "game", game)
		m.metrics.ObserveSessionInit(metrics.ResultUnsupported)
		return &Session{Game: game, GamePath: gamePath}
	}

	ctx, span := tracer.Start(ctx, "autosort.session.init", trace.WithAttributes(
		attribute.String("game", game),
		attribute.String("game_path", gamePath),
	))
	defer span.End()

	eng, err := m.newEngine(game, gamePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine construction failed")
		slog.Error("failed to initialize LOOT", "game", game, "path", gamePath, "error", err)
		m.host.Notify(Notification{
			Type:    NotifyError,
			Message: "Failed to initialize LOOT",
			Err:     err,
			Details: map[string]string{"game": game, "path": gamePath},
		})
		m.metrics.ObserveSessionInit(metrics.ResultFailed)
		return &Session{Game: game, GamePath: gamePath}
	}

	masterlistPath := m.layout.MasterlistPath(game)
	result := metrics.ResultReady
	if err := m.updateMasterlist(ctx, eng, game, masterlistPath); err != nil {
		span.RecordError(err)
		slog.Warn("failed to update masterlist", "game", game, "error", err)
		m.host.Notify(Notification{
			Type:    NotifyWarning,
			Message: "failed to update masterlist",
			Err:     err,
			Details: map[string]string{"game": game},
		})
		result = metrics.ResultDegraded
	}
	m.metrics.ObserveSessionInit(result)

	lists := NewListCache(game, masterlistPath, m.layout.UserlistPath(game), m.stat)
	lists.metrics = m.metrics

	return &Session{
		Game:     game,
		GamePath: gamePath,
		Engine:   eng,
		lists:    lists,
	}
}

// newEngine prepares the working directory and constructs the engine.
func (m *SessionManager) newEngine(game, gamePath string) (eng rules.Engine, err error) {
	localPath := m.layout.PluginDir(game)
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrSessionInit, localPath, err)
	}

	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("%w: %w: %v", ErrSessionInit, ErrEnginePanic, r)
		}
	}()

	eng, err = m.factory(game, gamePath, localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInit, err)
	}
	if eng == nil {
		return nil, fmt.Errorf("%w: factory returned no engine", ErrSessionInit)
	}
	return eng, nil
}

// updateMasterlist refreshes the session masterlist, retrying with a
// constant backoff.
func (m *SessionManager) updateMasterlist(ctx context.Context, eng rules.Engine, game, masterlistPath string) error {
	if err := os.MkdirAll(filepath.Dir(masterlistPath), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrMasterlistUpdate, err)
	}

	remote := m.source.URL(game)
	branch := m.source.branch()

	retries := m.source.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.source.RetryInterval), uint64(retries)),
		ctx,
	)

	var updated bool
	attempt := 0
	op := func() error {
		attempt++
		var err error
		updated, err = eng.UpdateMasterlist(ctx, masterlistPath, remote, branch)
		if err != nil {
			slog.Debug("masterlist update attempt failed", "game", game, "attempt", attempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w: %w", ErrMasterlistUpdate, err)
	}

	slog.Info("updated loot masterlist", "game", game, "updated", updated, "remote", remote, "branch", branch)
	return nil
}
