package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FakeFS tracks file modification times without touching the disk. Its
// Stat method is an autosort.StatFunc.
type FakeFS struct {
	mu     sync.Mutex
	mtimes map[string]time.Time
	stats  int
}

// NewFakeFS creates an empty file system.
func NewFakeFS() *FakeFS {
	return &FakeFS{mtimes: make(map[string]time.Time)}
}

// Touch creates or updates path with mtime.
func (fs *FakeFS) Touch(path string, mtime time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mtimes[path] = mtime
}

// Remove deletes path.
func (fs *FakeFS) Remove(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.mtimes, path)
}

// Stat returns the mtime of path or an error wrapping os.ErrNotExist.
func (fs *FakeFS) Stat(path string) (time.Time, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.stats++
	mtime, ok := fs.mtimes[path]
	if !ok {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, os.ErrNotExist)
	}
	return mtime, nil
}

// Stats is the number of Stat calls so far.
func (fs *FakeFS) Stats() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.stats
}

// DirLayout places every per-game file under Root.
type DirLayout struct {
	Root string
}

func (l DirLayout) PluginDir(game string) string {
	return filepath.Join(l.Root, "plugins", game)
}

func (l DirLayout) MasterlistPath(game string) string {
	return filepath.Join(l.Root, "masterlists", game, "masterlist.yaml")
}

func (l DirLayout) UserlistPath(game string) string {
	return filepath.Join(l.Root, "userdata", game, "userlist.yaml")
}
