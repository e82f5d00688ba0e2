package testutil

import (
	"sync"

	"github.com/roach88/autosort/internal/autosort"
)

// FakeState is a mutable autosort.State.
type FakeState struct {
	mu        sync.Mutex
	autoSort  bool
	active    string
	paths     map[string]string
	loadOrder []string
	enabled   []string
}

var _ autosort.State = (*FakeState)(nil)

// NewFakeState creates a state with auto sort disabled and no profile.
func NewFakeState() *FakeState {
	return &FakeState{paths: make(map[string]string)}
}

func (s *FakeState) AutoSort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSort
}

func (s *FakeState) ActiveProfile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *FakeState) GamePath(game string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[game]
}

func (s *FakeState) LoadOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loadOrder...)
}

func (s *FakeState) EnabledPlugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.enabled...)
}

// SetAutoSort toggles automatic sorting.
func (s *FakeState) SetAutoSort(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSort = on
}

// SetActive changes the active profile.
func (s *FakeState) SetActive(game string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = game
}

// SetGamePath records the installation path of game.
func (s *FakeState) SetGamePath(game, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[game] = path
}

// SetPlugins replaces the load order and the enabled set.
func (s *FakeState) SetPlugins(loadOrder, enabled []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadOrder = append([]string(nil), loadOrder...)
	s.enabled = append([]string(nil), enabled...)
}
