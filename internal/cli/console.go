package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/autosort/internal/autosort"
)

// consoleHost prints notifications and dialogs as text. Activities and
// load orders only reach the debug log; commands print results themselves.
//
// With expand set, notification actions run right away, so a cyclic rules
// warning is followed by its detail dialog.
type consoleHost struct {
	mu     sync.Mutex
	out    io.Writer
	expand bool
}

var _ autosort.Host = (*consoleHost)(nil)

func newConsoleHost(out io.Writer, expand bool) *consoleHost {
	return &consoleHost{out: out, expand: expand}
}

func (h *consoleHost) StartActivity(group, id string) {
	slog.Debug("activity started", "group", group, "id", id)
}

func (h *consoleHost) StopActivity(group, id string) {
	slog.Debug("activity stopped", "group", group, "id", id)
}

func (h *consoleHost) SetLoadOrder(order []string) {
	slog.Debug("load order published", "plugins", len(order))
}

func (h *consoleHost) Notify(n autosort.Notification) {
	h.print(n)
	if !h.expand {
		return
	}
	for _, a := range n.Actions {
		a.Run(func() {})
	}
}

func (h *consoleHost) print(n autosort.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "[%s] %s\n", n.Type, n.Message)
	if n.Err != nil {
		fmt.Fprintf(h.out, "  %v\n", n.Err)
	}
	keys := make([]string, 0, len(n.Details))
	for k := range n.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h.out, "  %s: %s\n", k, n.Details[k])
	}
	if !h.expand {
		for _, a := range n.Actions {
			fmt.Fprintf(h.out, "  action: %s (use --verbose to expand)\n", a.Title)
		}
	}
}

func (h *consoleHost) ShowDialog(d autosort.Dialog) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "== %s ==\n%s\n", d.Title, bbcodeText.Replace(d.Body))
}

// bbcodeText turns the markup used in dialog bodies into plain text.
var bbcodeText = strings.NewReplacer(
	"<br />", "\n",
	"[i]", "",
	"[/i]", "",
	"[quote]", "\n  ",
	"[/quote]", "",
)

// logHost writes notifications to the default logger, for the server
// where nobody reads a console.
type logHost struct{}

var _ autosort.Host = logHost{}

func (logHost) StartActivity(group, id string) {
	slog.Debug("activity started", "group", group, "id", id)
}

func (logHost) StopActivity(group, id string) {
	slog.Debug("activity stopped", "group", group, "id", id)
}

func (logHost) SetLoadOrder(order []string) {
	slog.Info("load order published", "plugins", len(order))
}

func (logHost) Notify(n autosort.Notification) {
	level := slog.LevelInfo
	switch n.Type {
	case autosort.NotifyWarning:
		level = slog.LevelWarn
	case autosort.NotifyError:
		level = slog.LevelError
	}
	args := []any{"id", n.ID, "persistent", n.Persistent}
	if n.Err != nil {
		args = append(args, "error", n.Err.Error())
	}
	for k, v := range n.Details {
		args = append(args, k, v)
	}
	slog.Log(context.Background(), level, n.Message, args...)
}

func (logHost) ShowDialog(d autosort.Dialog) {
	slog.Info("dialog", "title", d.Title)
}
