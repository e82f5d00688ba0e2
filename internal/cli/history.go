package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autosort/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Game          string
	Limit         int
	Notifications bool
}

// HistoryEntry is one load order in the history output.
type HistoryEntry struct {
	Seq        int64     `json:"seq"`
	SortID     string    `json:"sort_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	Plugins    []string  `json:"plugins"`
}

// NotificationEntry is one stored notification in the history output.
type NotificationEntry struct {
	Seq     int64             `json:"seq"`
	ID      string            `json:"id,omitempty"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HistoryResult holds the complete history output.
type HistoryResult struct {
	Game          string              `json:"game"`
	LoadOrders    []HistoryEntry      `json:"load_orders"`
	Notifications []NotificationEntry `json:"notifications,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show published load orders",
		Long: `Show the load orders recorded for a game, newest first.

Each entry carries the id of the sort request that published it.
Use --verbose to list the plugins of every entry.

Examples:
  autosort history --game skyrimse
  autosort history --game skyrimse --limit 1 --verbose
  autosort history --game skyrimse --notifications --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Game, "game", "g", "", "game id (required)")
	_ = cmd.MarkFlagRequired("game")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "maximum entries (0 for all)")
	cmd.Flags().BoolVar(&opts.Notifications, "notifications", false, "include stored notifications")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if cfg.Database == "" {
		_ = out.Error(CodeNoDatabase, "persistence is disabled", nil)
		return NewExitError(ExitCommandError, "history requires a database (set database in the config)")
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.History(ctx, opts.Game, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	result := HistoryResult{Game: opts.Game, LoadOrders: make([]HistoryEntry, 0, len(records))}
	for _, rec := range records {
		result.LoadOrders = append(result.LoadOrders, HistoryEntry{
			Seq:        rec.Seq,
			SortID:     rec.SortID,
			RecordedAt: time.UnixMilli(rec.RecordedAt).UTC(),
			Plugins:    rec.Plugins,
		})
	}

	if opts.Notifications {
		notes, err := st.Notifications(ctx, opts.Game)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read notifications", err)
		}
		for _, n := range notes {
			result.Notifications = append(result.Notifications, NotificationEntry{
				Seq:     n.Seq,
				ID:      n.ID,
				Type:    n.Type,
				Message: n.Message,
				Error:   n.Error,
				Details: n.Details,
			})
		}
	}

	return out.Success(result, formatHistory(result, opts.Verbose))
}

// formatHistory renders the text form of result.
func formatHistory(result HistoryResult, verbose bool) string {
	var b strings.Builder

	if len(result.LoadOrders) == 0 {
		fmt.Fprintf(&b, "No load orders recorded for %s\n", result.Game)
	} else {
		fmt.Fprintf(&b, "Load orders for %s (newest first)\n", result.Game)
	}
	for _, e := range result.LoadOrders {
		sortID := e.SortID
		if sortID == "" {
			sortID = "-"
		}
		fmt.Fprintf(&b, "  #%d %s sort=%s plugins=%d\n",
			e.Seq, e.RecordedAt.Format(time.RFC3339), sortID, len(e.Plugins))
		if verbose {
			for i, name := range e.Plugins {
				fmt.Fprintf(&b, "      %3d %s\n", i, name)
			}
		}
	}

	if len(result.Notifications) > 0 {
		b.WriteString("\nNotifications\n")
		for _, n := range result.Notifications {
			fmt.Fprintf(&b, "  #%d [%s] %s\n", n.Seq, n.Type, n.Message)
			if n.Error != "" {
				fmt.Fprintf(&b, "      %s\n", n.Error)
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
