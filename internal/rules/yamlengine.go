package rules

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// pluginExtensions are the file types the reference engine accepts.
var pluginExtensions = []string{".esp", ".esm", ".esl"}

// Key normalizes a plugin name for comparison. Plugin names are file names
// on case-insensitive file systems, so "Skyrim.esm" and "skyrim.ESM" are
// the same plugin.
func Key(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// listFile is the on-disk layout of a masterlist or userlist.
type listFile struct {
	Plugins []pluginEntry `yaml:"plugins"`
}

// pluginEntry holds every rule a list attaches to one plugin.
type pluginEntry struct {
	Name     string         `yaml:"name"`
	After    []string       `yaml:"after,omitempty"`
	Req      []string       `yaml:"req,omitempty"`
	Tag      []string       `yaml:"tag,omitempty"` // "-Name" suggests removal
	Msg      []Message      `yaml:"msg,omitempty"`
	Dirty    []CleaningInfo `yaml:"dirty,omitempty"`
	Clean    []CleaningInfo `yaml:"clean,omitempty"`
	Priority *int           `yaml:"global_priority,omitempty"`
}

// merge folds other's rules into e. A priority in other wins.
func (e *pluginEntry) merge(other pluginEntry) {
	e.After = append(e.After, other.After...)
	e.Req = append(e.Req, other.Req...)
	e.Tag = append(e.Tag, other.Tag...)
	e.Msg = append(e.Msg, other.Msg...)
	e.Dirty = append(e.Dirty, other.Dirty...)
	e.Clean = append(e.Clean, other.Clean...)
	if other.Priority != nil {
		p := *other.Priority
		e.Priority = &p
	}
}

// YAMLEngine is the reference Engine. Lists are YAML documents with a
// top-level "plugins" sequence.
//
// Thread-safety: all methods are safe for concurrent use. LoadLists swaps
// the evaluated rules in one step under the write lock.
type YAMLEngine struct {
	game      string
	gamePath  string
	localPath string
	client    *http.Client

	mu      sync.RWMutex
	entries map[string]*pluginEntry
}

var _ Engine = (*YAMLEngine)(nil)

// NewYAMLEngine creates an engine for game. gamePath may be empty; when it
// points at an installation with a Data directory, Sort rejects plugins
// that are not present there.
func NewYAMLEngine(game, gamePath, localPath string) (*YAMLEngine, error) {
	if strings.TrimSpace(game) == "" {
		return nil, &EngineError{Op: "init", Message: "game id is required"}
	}
	if gamePath != "" {
		if _, err := os.Stat(gamePath); err != nil {
			return nil, &EngineError{Op: "init", Message: fmt.Sprintf("game path %q is not accessible", gamePath), Err: err}
		}
	}
	return &YAMLEngine{
		game:      game,
		gamePath:  gamePath,
		localPath: localPath,
		client:    &http.Client{Timeout: 30 * time.Second},
		entries:   make(map[string]*pluginEntry),
	}, nil
}

// YAMLFactory adapts NewYAMLEngine to Factory.
func YAMLFactory(game, gamePath, localPath string) (Engine, error) {
	e, err := NewYAMLEngine(game, gamePath, localPath)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Sort orders plugins so that every "after" and "req" rule is satisfied.
func (e *YAMLEngine) Sort(ctx context.Context, plugins []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.checkPlugins(plugins); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]string, 0, len(plugins))
	display := make(map[string]string, len(plugins))
	for _, name := range plugins {
		k := Key(name)
		if _, dup := display[k]; dup {
			continue
		}
		display[k] = name
		keys = append(keys, k)
	}

	g := newLoadGraph(keys)
	priority := make(map[string]int, len(keys))
	for _, k := range keys {
		entry := e.entries[k]
		if entry == nil {
			continue
		}
		for _, before := range entry.After {
			g.addEdge(Key(before), k)
		}
		for _, before := range entry.Req {
			g.addEdge(Key(before), k)
		}
		if entry.Priority != nil {
			priority[k] = *entry.Priority
		}
	}

	if cycle := g.firstCycle(); cycle != nil {
		names := make([]string, len(cycle))
		for i, k := range cycle {
			names[i] = display[k]
		}
		return nil, NewCycleError(names)
	}

	ordered := g.order(priority)
	out := make([]string, len(ordered))
	for i, k := range ordered {
		out[i] = display[k]
	}
	return out, nil
}

// checkPlugins rejects names that are not plugin files, and names missing
// from the game's Data directory when one exists.
func (e *YAMLEngine) checkPlugins(plugins []string) error {
	dataDir := ""
	if e.gamePath != "" {
		candidate := filepath.Join(e.gamePath, "Data")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			dataDir = candidate
		}
	}

	for _, name := range plugins {
		if !hasPluginExtension(name) {
			return NewInvalidPluginError(name)
		}
		if dataDir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			return NewInvalidPluginError(name)
		}
	}
	return nil
}

func hasPluginExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range pluginExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// LoadLists parses both lists and replaces the evaluated rules. A missing
// masterlist is treated as empty so sorting works before the first update.
func (e *YAMLEngine) LoadLists(ctx context.Context, masterlistPath, userlistPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := make(map[string]*pluginEntry)

	master, err := readList(masterlistPath)
	if err != nil && !os.IsNotExist(err) {
		return &EngineError{Op: "load", Message: fmt.Sprintf("failed to read masterlist %q: %v", masterlistPath, err), Err: err}
	}
	mergeInto(entries, master)

	if userlistPath != "" {
		user, err := readList(userlistPath)
		if err != nil {
			return &EngineError{Op: "load", Message: fmt.Sprintf("failed to read userlist %q: %v", userlistPath, err), Err: err}
		}
		mergeInto(entries, user)
	}

	e.mu.Lock()
	e.entries = entries
	e.mu.Unlock()

	slog.Debug("lists evaluated", "game", e.game, "plugins", len(entries))
	return nil
}

func readList(path string) (*listFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseList(data)
}

func parseList(data []byte) (*listFile, error) {
	var lf listFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse list: %w", err)
	}
	for i, p := range lf.Plugins {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("parse list: plugins[%d] has no name", i)
		}
	}
	return &lf, nil
}

func mergeInto(entries map[string]*pluginEntry, lf *listFile) {
	if lf == nil {
		return
	}
	for _, p := range lf.Plugins {
		k := Key(p.Name)
		if existing, ok := entries[k]; ok {
			existing.merge(p)
			continue
		}
		entry := pluginEntry{Name: p.Name}
		entry.merge(p)
		entries[k] = &entry
	}
}

// UpdateMasterlist copies the masterlist published at remoteURL into
// masterlistPath. Local paths and file:// URLs are read directly; GitHub
// repository URLs are mapped to the raw file on branch; other http(s) URLs
// are fetched as-is.
func (e *YAMLEngine) UpdateMasterlist(ctx context.Context, masterlistPath, remoteURL, branch string) (bool, error) {
	data, err := e.fetch(ctx, remoteURL, branch)
	if err != nil {
		return false, err
	}
	if _, err := parseList(data); err != nil {
		return false, &EngineError{Op: "update", Message: fmt.Sprintf("remote masterlist is invalid: %v", err), Err: err}
	}

	existing, err := os.ReadFile(masterlistPath)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	tmp := masterlistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, &EngineError{Op: "update", Message: fmt.Sprintf("failed to write masterlist: %v", err), Err: err}
	}
	if err := os.Rename(tmp, masterlistPath); err != nil {
		_ = os.Remove(tmp)
		return false, &EngineError{Op: "update", Message: fmt.Sprintf("failed to replace masterlist: %v", err), Err: err}
	}
	return true, nil
}

func (e *YAMLEngine) fetch(ctx context.Context, remoteURL, branch string) ([]byte, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("invalid masterlist url %q", remoteURL), Err: err}
	}

	switch u.Scheme {
	case "", "file":
		path := remoteURL
		if u.Scheme == "file" {
			path = u.Path
		}
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, "masterlist.yaml")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &EngineError{Op: "update", Message: fmt.Sprintf("failed to read masterlist source: %v", err), Err: err}
		}
		return data, nil

	case "http", "https":
		target := remoteURL
		if u.Host == "github.com" && strings.HasSuffix(u.Path, ".git") {
			target = fmt.Sprintf("https://raw.githubusercontent.com%s/%s/masterlist.yaml",
				strings.TrimSuffix(u.Path, ".git"), branch)
		}
		return e.download(ctx, target)

	default:
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("unsupported masterlist url scheme %q", u.Scheme)}
	}
}

func (e *YAMLEngine) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("invalid masterlist url %q", target), Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("failed to fetch masterlist: %v", err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("failed to fetch masterlist: %s returned %s", target, resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &EngineError{Op: "update", Message: fmt.Sprintf("failed to read masterlist: %v", err), Err: err}
	}
	return data, nil
}

// Metadata returns what the loaded lists say about plugin. Unknown plugins
// yield zero Metadata.
func (e *YAMLEngine) Metadata(plugin string) Metadata {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry := e.entries[Key(plugin)]
	if entry == nil {
		return Metadata{}
	}

	md := Metadata{
		Messages:    append([]Message(nil), entry.Msg...),
		Cleanliness: append([]CleaningInfo(nil), entry.Clean...),
		Dirtiness:   append([]CleaningInfo(nil), entry.Dirty...),
	}
	for _, t := range entry.Tag {
		if name, removed := strings.CutPrefix(t, "-"); removed {
			md.Tags = append(md.Tags, Tag{Name: name, Addition: false})
			continue
		}
		md.Tags = append(md.Tags, Tag{Name: t, Addition: true})
	}
	if entry.Priority != nil {
		md.GlobalPriority = *entry.Priority
	}
	return md
}
