package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/autosort/internal/rules"
)

// Plugins is a load order with its enabled subset.
type Plugins struct {
	LoadOrder []string `json:"load_order"`
	Enabled   []string `json:"enabled"`
}

// ParsePlugins reads the plugins.txt format: one plugin per line in load
// order, a leading '*' marks the plugin enabled, '#' starts a comment.
// Names are NFC-normalized and later duplicates are dropped.
func ParsePlugins(r io.Reader) (Plugins, error) {
	var p Plugins
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		enabled := strings.HasPrefix(text, "*")
		name := norm.NFC.String(strings.TrimSpace(strings.TrimPrefix(text, "*")))
		if name == "" {
			return Plugins{}, fmt.Errorf("line %d: missing plugin name", line)
		}

		key := rules.Key(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		p.LoadOrder = append(p.LoadOrder, name)
		if enabled {
			p.Enabled = append(p.Enabled, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return Plugins{}, fmt.Errorf("read plugins: %w", err)
	}
	return p, nil
}

// ReadPluginsFile parses the plugins file at path.
func ReadPluginsFile(path string) (Plugins, error) {
	f, err := os.Open(path)
	if err != nil {
		return Plugins{}, err
	}
	defer f.Close()

	p, err := ParsePlugins(f)
	if err != nil {
		return Plugins{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// FormatPlugins renders order in the plugins.txt format, marking the names
// that are in enabled.
func FormatPlugins(order, enabled []string) []byte {
	on := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		on[rules.Key(name)] = true
	}

	var buf bytes.Buffer
	for _, name := range order {
		if on[rules.Key(name)] {
			buf.WriteByte('*')
		}
		buf.WriteString(name)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WritePluginsFile replaces path with order, keeping the enabled markers.
func WritePluginsFile(path string, order, enabled []string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, FormatPlugins(order, enabled), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
