package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/autosort/internal/autosort"
	"github.com/roach88/autosort/internal/rules"
)

// SortOptions holds flags for the sort command.
type SortOptions struct {
	*RootOptions
	Game    string
	Plugins string // plugins.txt path
	Auto    bool   // request as an automatic sort
	Write   bool   // write the sorted order back to the plugins file
}

// SortResult is the JSON payload of the sort command.
type SortResult struct {
	ID      string   `json:"id,omitempty"`
	Game    string   `json:"game"`
	Order   []string `json:"order,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// NewSortCommand creates the sort command.
func NewSortCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SortOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort the enabled plugins of a game",
		Long: `Activate the game's profile, refresh its masterlist and sort the
enabled plugins listed in a plugins.txt file.

The plugins file lists one plugin per line in load order. A leading '*'
marks the plugin enabled; only enabled plugins are sorted.

Exit codes:
  0 - Sorted, or skipped (auto sort disabled with --auto)
  1 - Session failed to initialize, or the sort failed
  2 - Command error (bad config, unreadable plugins file)

Examples:
  autosort sort --game skyrimse --plugins ./plugins.txt
  autosort sort --game skyrimse --plugins ./plugins.txt --write
  autosort sort --game skyrimse --plugins ./plugins.txt --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Game, "game", "g", "", "game id (required)")
	_ = cmd.MarkFlagRequired("game")
	cmd.Flags().StringVarP(&opts.Plugins, "plugins", "p", "", "path to plugins.txt (required)")
	_ = cmd.MarkFlagRequired("plugins")
	cmd.Flags().BoolVar(&opts.Auto, "auto", false, "request an automatic sort (honours auto_sort)")
	cmd.Flags().BoolVarP(&opts.Write, "write", "w", false, "write the sorted order back to the plugins file")

	return cmd
}

func runSort(opts *SortOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	plugins, err := ReadPluginsFile(opts.Plugins)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read plugins file", err)
	}

	a, err := newApp(cfg, appOptions{Out: cmd.ErrOrStderr(), Expand: opts.Verbose})
	if err != nil {
		return err
	}
	defer a.Close()

	a.state.setPlugins(plugins)
	sess, err := a.activate(ctx, opts.Game)
	if err != nil {
		return WrapExitError(ExitFailure, "profile activation interrupted", err)
	}
	if !sess.Ready() && cfg.Supported(opts.Game) {
		_ = out.Error(CodeSession, fmt.Sprintf("no LOOT session for %s", opts.Game), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("failed to initialize LOOT for %s", opts.Game))
	}

	res, err := a.sort(ctx, !opts.Auto)
	if err != nil {
		return WrapExitError(ExitFailure, "sort interrupted", err)
	}

	if res.Err != nil {
		code := failureCode(res.Failure)
		_ = out.Error(code, rules.EngineMessage(res.Err), failureDetails(res))
		return WrapExitError(ExitFailure, "plugins not sorted", res.Err)
	}

	result := SortResult{
		ID:      res.ID,
		Game:    res.Game,
		Order:   res.Order,
		Skipped: res.Skipped,
		Reason:  res.Reason,
	}
	if res.Skipped {
		return out.Success(result, fmt.Sprintf("Sort skipped: %s", res.Reason))
	}

	if opts.Write {
		full := mergeOrder(res.Order, plugins.LoadOrder)
		if err := WritePluginsFile(opts.Plugins, full, plugins.Enabled); err != nil {
			return WrapExitError(ExitCommandError, "failed to write plugins file", err)
		}
	}
	return out.Success(result, strings.Join(res.Order, "\n"))
}

// failureCode maps a sort failure to its CLI error code.
func failureCode(c *autosort.Classification) string {
	if c == nil {
		return CodeSortGeneric
	}
	switch c.Kind {
	case autosort.FailureCyclic:
		return CodeSortCyclic
	case autosort.FailureInvalidEntry:
		return CodeSortInvalid
	default:
		return CodeSortGeneric
	}
}

func failureDetails(o autosort.SortOutcome) map[string]string {
	details := map[string]string{"id": o.ID, "game": o.Game}
	if o.Failure != nil {
		details["kind"] = o.Failure.Kind.String()
		if o.Failure.Plugin != "" {
			details["plugin"] = o.Failure.Plugin
		}
	}
	return details
}

// mergeOrder places the sorted names first, followed by every name of all
// that sorted omits, in its original position relative to the others.
func mergeOrder(sorted, all []string) []string {
	placed := make(map[string]bool, len(sorted))
	merged := make([]string, 0, len(all))
	for _, name := range sorted {
		placed[rules.Key(name)] = true
		merged = append(merged, name)
	}
	for _, name := range all {
		if !placed[rules.Key(name)] {
			merged = append(merged, name)
		}
	}
	return merged
}
