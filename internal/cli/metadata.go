package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/autosort/internal/rules"
)

// MetadataOptions holds flags for the metadata command.
type MetadataOptions struct {
	*RootOptions
	Game string
}

// NewMetadataCommand creates the metadata command.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MetadataOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "metadata <plugin>...",
		Short: "Show what the lists say about plugins",
		Long: `Show the messages, Bash tags and cleaning data that the game's
masterlist and userlist hold for each plugin.

Examples:
  autosort metadata --game skyrimse Dawnguard.esm
  autosort metadata --game skyrimse Dawnguard.esm Unofficial.esp --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadata(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Game, "game", "g", "", "game id (required)")
	_ = cmd.MarkFlagRequired("game")

	return cmd
}

func runMetadata(opts *MetadataOptions, names []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	// Lookups write nothing worth keeping.
	cfg.Database = ""

	a, err := newApp(cfg, appOptions{Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.activate(ctx, opts.Game)
	if err != nil {
		return WrapExitError(ExitFailure, "profile activation interrupted", err)
	}

	// Lists are otherwise loaded by the first sort.
	if lists := sess.Lists(); lists != nil {
		if _, err := lists.EnsureLoaded(ctx, sess.Engine); err != nil {
			_ = out.Error(CodeSession, "failed to load lists", err.Error())
			return WrapExitError(ExitFailure, "failed to load lists", err)
		}
	}

	md, err := a.service.Metadata(ctx, names)
	if err != nil {
		return WrapExitError(ExitFailure, "metadata query interrupted", err)
	}

	return out.Success(md, formatMetadata(names, md))
}

// formatMetadata renders md for names in argument order.
func formatMetadata(names []string, md map[string]rules.Metadata) string {
	if len(md) == 0 {
		return "No metadata available (no LOOT session)."
	}

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		m := md[name]
		fmt.Fprintf(&b, "%s\n", name)
		if m.GlobalPriority != 0 {
			fmt.Fprintf(&b, "  priority: %d\n", m.GlobalPriority)
		}
		for _, msg := range m.Messages {
			fmt.Fprintf(&b, "  %s: %s\n", msg.Type, msg.Content)
		}
		for _, tag := range m.Tags {
			sign := "+"
			if !tag.Addition {
				sign = "-"
			}
			fmt.Fprintf(&b, "  tag: %s%s\n", sign, tag.Name)
		}
		for _, c := range m.Dirtiness {
			fmt.Fprintf(&b, "  dirty: %s (%s) itm=%d udr=%d nav=%d\n", c.CRC, c.Utility, c.ITMCount, c.DeletedRefs, c.DeletedNavmeshes)
		}
		for _, c := range m.Cleanliness {
			fmt.Fprintf(&b, "  clean: %s (%s)\n", c.CRC, c.Utility)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
