package watchlist

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Store holds the tracked symbol set: a fixed default list merged with
// user-added symbols. Symbols are upper-cased and de-duplicated; listings are
// alphabetically sorted. Defaults cannot be removed.
// -----------------------------------------------------------------------------

type Store struct {
	DB     interfaces.IDatabase
	Logger *logger.Logger

	mu       sync.RWMutex
	defaults map[string]struct{}
	custom   map[string]struct{}

	// onChange is called with the merged symbol list after every mutation,
	// so running data sources can swap their tracked set.
	onChange func([]string)
}

// -----------------------------------------------------------------------------

func NewStore(defaults []string, db interfaces.IDatabase, log *logger.Logger) (*Store, error) {
	s := &Store{
		DB:       db,
		Logger:   log,
		defaults: make(map[string]struct{}, len(defaults)),
		custom:   make(map[string]struct{}),
	}

	for _, sym := range defaults {
		if n := Normalize(sym); n != "" {
			s.defaults[n] = struct{}{}
		}
	}

	stored, err := db.LoadWatchlistSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	for _, sym := range stored {
		n := Normalize(sym)
		if n == "" {
			continue
		}
		if _, isDefault := s.defaults[n]; !isDefault {
			s.custom[n] = struct{}{}
		}
	}

	log.Info("Watchlist loaded: %d defaults, %d user symbols", len(s.defaults), len(s.custom))
	return s, nil
}

// -----------------------------------------------------------------------------

// Normalize trims and upper-cases a symbol.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// -----------------------------------------------------------------------------

// OnChange registers the callback invoked with the merged list after every
// add/remove.
func (s *Store) OnChange(fn func([]string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Symbols returns the merged default + user list, sorted alphabetically.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mergedLocked()
}

func (s *Store) mergedLocked() []string {
	out := make([]string, 0, len(s.defaults)+len(s.custom))
	for sym := range s.defaults {
		out = append(out, sym)
	}
	for sym := range s.custom {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------

// IsDefault reports whether the symbol belongs to the fixed default list.
func (s *Store) IsDefault(symbol string) bool {
	n := Normalize(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.defaults[n]
	return ok
}

// -----------------------------------------------------------------------------

// Add inserts a user symbol. Adding an existing symbol is a no-op error.
func (s *Store) Add(symbol string) error {
	n := Normalize(symbol)
	if n == "" {
		return fmt.Errorf("symbol cannot be empty")
	}

	s.mu.Lock()
	if _, ok := s.defaults[n]; ok {
		s.mu.Unlock()
		return fmt.Errorf("symbol %s is already a default", n)
	}
	if _, ok := s.custom[n]; ok {
		s.mu.Unlock()
		return fmt.Errorf("symbol %s is already in the watchlist", n)
	}
	s.custom[n] = struct{}{}
	merged := s.mergedLocked()
	notify := s.onChange
	s.mu.Unlock()

	if err := s.DB.SaveWatchlistSymbol(n); err != nil {
		// Roll back the in-memory add so state and storage stay aligned.
		s.mu.Lock()
		delete(s.custom, n)
		s.mu.Unlock()
		return fmt.Errorf("failed to persist symbol %s: %w", n, err)
	}

	s.Logger.Info("Watchlist: added %s", n)
	if notify != nil {
		notify(merged)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Remove deletes a user symbol. Defaults are irremovable.
func (s *Store) Remove(symbol string) error {
	n := Normalize(symbol)

	s.mu.Lock()
	if _, ok := s.defaults[n]; ok {
		s.mu.Unlock()
		return fmt.Errorf("cannot remove default symbol %s", n)
	}
	if _, ok := s.custom[n]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("symbol %s is not in the watchlist", n)
	}
	delete(s.custom, n)
	merged := s.mergedLocked()
	notify := s.onChange
	s.mu.Unlock()

	if err := s.DB.DeleteWatchlistSymbol(n); err != nil {
		s.mu.Lock()
		s.custom[n] = struct{}{}
		s.mu.Unlock()
		return fmt.Errorf("failed to delete symbol %s: %w", n, err)
	}

	s.Logger.Info("Watchlist: removed %s", n)
	if notify != nil {
		notify(merged)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Entry describes one watchlist row for the API.
type Entry struct {
	Symbol    string `json:"symbol"`
	IsDefault bool   `json:"is_default"`
}

// Entries returns the sorted merged list with default flags.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := s.mergedLocked()
	out := make([]Entry, 0, len(merged))
	for _, sym := range merged {
		_, isDefault := s.defaults[sym]
		out = append(out, Entry{Symbol: sym, IsDefault: isDefault})
	}
	return out
}

// -----------------------------------------------------------------------------
// Seed file support: a YAML list of symbols loaded once at startup.
// -----------------------------------------------------------------------------

type seedFile struct {
	Watchlist []struct {
		Symbol string `yaml:"symbol"`
	} `yaml:"watchlist"`
}

// SeedFromFile adds the symbols listed in a watchlist YAML file. Symbols
// already present are skipped silently.
func (s *Store) SeedFromFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var wf seedFile
	if err := yaml.Unmarshal(b, &wf); err != nil {
		return fmt.Errorf("failed to parse watchlist file: %w", err)
	}

	added := 0
	for _, it := range wf.Watchlist {
		if err := s.Add(it.Symbol); err == nil {
			added++
		}
	}
	s.Logger.Info("Watchlist seed: %d symbols added from %s", added, path)
	return nil
}
