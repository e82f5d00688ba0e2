package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/rules"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	maxBodyBytes      = 1 << 20
	goroutineLimit    = 1000
	dbPingTimeout     = time.Second
)

var errNoSession = errors.New("no LOOT session")

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Game   string // profile active at startup
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sort service over HTTP",
		Long: `Run the sort service behind a small HTTP API.

Endpoints:
  POST /profiles/{game}/activate   switch the active profile
  PUT  /plugins                    replace load order and enabled set
  PUT  /settings/auto-sort         {"enabled": true|false}
  POST /sort?manual=true|false     request a sort and wait for it
  GET  /metadata?name=...          plugin metadata
  GET  /load-order                 last published load order
  GET  /history?limit=n            published load orders, newest first
  GET  /metrics                    Prometheus metrics
  GET  /live, /ready               health checks

Replacing the plugins requests an automatic sort, which only runs when
auto_sort is enabled.

Examples:
  autosort serve --config ./autosort.yaml
  autosort serve --listen 127.0.0.1:9000 --game skyrimse`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().StringVarP(&opts.Game, "game", "g", "", "profile to activate at startup")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, appOptions{Registry: reg, Log: true})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing service", "error", closeErr)
		}
	}()

	srv := NewServer(a, reg)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Game != "" {
		a.state.setActive(opts.Game)
		a.service.ProfileActivated(ctx, opts.Game)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	slog.Info("server started", "addr", ln.Addr().String(), "database", cfg.Database)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// Server exposes an app over HTTP.
type Server struct {
	app    *app
	health healthcheck.Handler
	mux    *http.ServeMux
}

// NewServer builds the routes for a. Health check results are exported to
// reg alongside the service metrics.
func NewServer(a *app, reg *prometheus.Registry) *Server {
	s := &Server{
		app:    a,
		health: healthcheck.NewMetricsHandler(reg, "autosort"),
		mux:    http.NewServeMux(),
	}

	s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(goroutineLimit))
	s.health.AddReadinessCheck("session", func() error {
		if !a.service.Ready() {
			return errNoSession
		}
		return nil
	})
	if a.store != nil {
		s.health.AddReadinessCheck("database", healthcheck.DatabasePingCheck(a.store.DB(), dbPingTimeout))
	}

	s.mux.HandleFunc("POST /profiles/{game}/activate", s.handleActivate)
	s.mux.HandleFunc("PUT /plugins", s.handlePlugins)
	s.mux.HandleFunc("PUT /settings/auto-sort", s.handleAutoSort)
	s.mux.HandleFunc("POST /sort", s.handleSort)
	s.mux.HandleFunc("GET /metadata", s.handleMetadata)
	s.mux.HandleFunc("GET /load-order", s.handleLoadOrder)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux.Handle("GET /live", s.health)
	s.mux.Handle("GET /ready", s.health)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ActivateResponse reports the session after a profile switch.
type ActivateResponse struct {
	Game  string `json:"game"`
	Ready bool   `json:"ready"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	game := r.PathValue("game")
	sess, err := s.app.activate(r.Context(), game)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeSession, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ActivateResponse{Game: sess.Game, Ready: sess.Ready()})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	var p Plugins
	if !decodeBody(w, r, &p) {
		return
	}
	s.app.state.setPlugins(p)

	// Changed plugins ask for an automatic sort; its outcome is published
	// through the hosts, not this response.
	s.app.linkLater(s.app.service.RequestSort(r.Context(), false))
	w.WriteHeader(http.StatusAccepted)
}

// AutoSortSetting is the body of PUT /settings/auto-sort.
type AutoSortSetting struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoSort(w http.ResponseWriter, r *http.Request) {
	var body AutoSortSetting
	if !decodeBody(w, r, &body) {
		return
	}
	s.app.state.setAutoSort(body.Enabled)
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	manual := true
	if v := r.URL.Query().Get("manual"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInput, fmt.Sprintf("invalid manual value %q", v))
			return
		}
		manual = b
	}

	out, err := s.app.sort(r.Context(), manual)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeSortGeneric, err.Error())
		return
	}
	if out.Err != nil {
		writeJSON(w, http.StatusConflict, CLIResponse{
			Status: "error",
			SortID: out.ID,
			Error: &CLIError{
				Code:    failureCode(out.Failure),
				Message: rules.EngineMessage(out.Err),
				Details: failureDetails(out),
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, sortResult(out))
}

func sortResult(out autosort.SortOutcome) SortResult {
	return SortResult{
		ID:      out.ID,
		Game:    out.Game,
		Order:   out.Order,
		Skipped: out.Skipped,
		Reason:  out.Reason,
	}
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	names := r.URL.Query()["name"]
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, CodeInput, "at least one name is required")
		return
	}
	md, err := s.app.service.Metadata(r.Context(), names)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, CodeSession, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleLoadOrder(w http.ResponseWriter, r *http.Request) {
	if s.app.store == nil {
		writeError(w, http.StatusNotImplemented, CodeNoDatabase, "persistence is disabled")
		return
	}
	game := r.URL.Query().Get("game")
	if game == "" {
		game = s.app.state.ActiveProfile()
	}
	rec, ok, err := s.app.store.LatestLoadOrder(r.Context(), game)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeStore, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeStore, fmt.Sprintf("no load order recorded for %q", game))
		return
	}
	writeJSON(w, http.StatusOK, historyEntry(rec.Seq, rec.SortID, rec.RecordedAt, rec.Plugins))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.app.store == nil {
		writeError(w, http.StatusNotImplemented, CodeNoDatabase, "persistence is disabled")
		return
	}
	game := r.URL.Query().Get("game")
	if game == "" {
		game = s.app.state.ActiveProfile()
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInput, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	records, err := s.app.store.History(r.Context(), game, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeStore, err.Error())
		return
	}
	result := HistoryResult{Game: game, LoadOrders: make([]HistoryEntry, 0, len(records))}
	for _, rec := range records {
		result.LoadOrders = append(result.LoadOrders, historyEntry(rec.Seq, rec.SortID, rec.RecordedAt, rec.Plugins))
	}
	writeJSON(w, http.StatusOK, result)
}

func historyEntry(seq int64, sortID string, recordedAt int64, plugins []string) HistoryEntry {
	return HistoryEntry{
		Seq:        seq,
		SortID:     sortID,
		RecordedAt: time.UnixMilli(recordedAt).UTC(),
		Plugins:    plugins,
	}
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInput, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: message},
	})
}
