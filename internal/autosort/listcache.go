package autosort

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/autosort/internal/metrics"
	"github.com/roach88/autosort/internal/rules"
)

// StatFunc returns the modification time of path. An error means the file
// is absent.
type StatFunc func(path string) (time.Time, error)

// OSStat is the StatFunc backed by os.Stat.
func OSStat(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// ListCache decides when the engine must (re-)load its rule lists.
//
// Lists are loaded on the first check of a session and afterwards only when
// the userlist's modification time changes. An absent userlist has a null
// mtime: once a null mtime is recorded, a later null is not a change, so a
// permanently missing file never triggers reloads. Deleting the userlist
// after it was loaded does not trigger a reload either.
//
// Thread-safety: EnsureLoaded serializes itself. In practice it runs only
// inside the sort chain.
type ListCache struct {
	game           string
	masterlistPath string
	userlistPath   string
	stat           StatFunc
	metrics        *metrics.Metrics

	mu          sync.Mutex
	loaded      bool      // never-loaded marker
	lastPresent bool      // false records a null mtime
	lastMtime   time.Time // valid when lastPresent
}

// NewListCache creates a cache for game. A nil stat uses OSStat.
func NewListCache(game, masterlistPath, userlistPath string, stat StatFunc) *ListCache {
	if stat == nil {
		stat = OSStat
	}
	return &ListCache{
		game:           game,
		masterlistPath: masterlistPath,
		userlistPath:   userlistPath,
		stat:           stat,
	}
}

// MasterlistPath is where the session's masterlist lives.
func (c *ListCache) MasterlistPath() string { return c.masterlistPath }

// UserlistPath is where the session's userlist lives.
func (c *ListCache) UserlistPath() string { return c.userlistPath }

// EnsureLoaded loads the lists into eng when needed and reports whether it
// did. Load failures are returned wrapped in ErrListLoad; the recorded
// baseline is left untouched so the next call retries.
func (c *ListCache) EnsureLoaded(ctx context.Context, eng rules.Engine) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mtime, err := c.stat(c.userlistPath)
	present := err == nil

	if !c.needsReload(present, mtime) {
		return false, nil
	}

	userlist := ""
	if present {
		userlist = c.userlistPath
	}

	attrs := []any{
		"game", c.game,
		"masterlist", c.masterlistPath,
		"userlist", userlist,
	}
	if present {
		attrs = append(attrs, "mtime", mtime)
	}
	if c.loaded && c.lastPresent {
		attrs = append(attrs, "last", c.lastMtime)
	}
	slog.Info("(re-)loading loot lists", attrs...)

	if err := eng.LoadLists(ctx, c.masterlistPath, userlist); err != nil {
		return false, fmt.Errorf("%w: %w", ErrListLoad, err)
	}
	slog.Info("loaded loot lists", "game", c.game)

	c.loaded = true
	c.lastPresent = present
	c.lastMtime = mtime
	c.metrics.ObserveReload()
	return true, nil
}

// needsReload applies the reload policy. Caller holds c.mu.
func (c *ListCache) needsReload(present bool, mtime time.Time) bool {
	if !c.loaded {
		return true
	}
	if !present {
		return false
	}
	return !c.lastPresent || !c.lastMtime.Equal(mtime)
}
