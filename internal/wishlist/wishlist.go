// Package wishlist maintains the ten user wishlists: named, ordered sets
// of subscribed instrument symbols.
package wishlist

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"stratagem/internal/catalog"
	"stratagem/internal/store"
	"stratagem/internal/txlog"
)

// Count is the fixed number of wishlists.
const Count = 10

var (
	// ErrAlreadyPresent means the symbol is already in that wishlist.
	ErrAlreadyPresent = errors.New("symbol already in wishlist")

	// ErrUnknownSymbol means the symbol is not in the instrument catalog.
	ErrUnknownSymbol = errors.New("symbol not in instrument catalog")

	// ErrBadIndex means the wishlist index is outside [0, Count).
	ErrBadIndex = errors.New("wishlist index out of range")
)

// Set holds all ten wishlists. A symbol may appear in several wishlists
// but at most once within one; insertion order is display order.
type Set struct {
	mu      sync.RWMutex
	names   [Count]string
	symbols [Count][]string

	catalog *catalog.Catalog
	store   store.WishlistStore
	txlog   *txlog.Log
	log     *slog.Logger
}

// NewSet creates the ten wishlists with default names. A nil catalog
// disables symbol validation.
func NewSet(cat *catalog.Catalog, st store.WishlistStore, tl *txlog.Log, logger *slog.Logger) *Set {
	s := &Set{
		catalog: cat,
		store:   st,
		txlog:   tl,
		log:     logger.With("component", "wishlists"),
	}
	for i := range s.names {
		s.names[i] = fmt.Sprintf("Wishlist %d", i+1)
	}
	return s
}

// Restore loads persisted names and symbols, replacing current state.
func (s *Set) Restore() error {
	records, err := s.store.LoadWishlists()
	if err != nil {
		return fmt.Errorf("loading wishlists: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.Index < 0 || r.Index >= Count {
			s.log.Warn("ignoring persisted wishlist with bad index", "index", r.Index)
			continue
		}
		s.names[r.Index] = r.Name
		s.symbols[r.Index] = append([]string(nil), r.Symbols...)
	}
	return nil
}

// Add appends a symbol to wishlist idx. Adding a symbol already present is
// a no-op reported as ErrAlreadyPresent; the wishlist never holds
// duplicates.
func (s *Set) Add(idx int, symbol string) error {
	if idx < 0 || idx >= Count {
		return fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}
	if s.catalog != nil && !s.catalog.Has(symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	s.mu.Lock()
	for _, sym := range s.symbols[idx] {
		if sym == symbol {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyPresent, symbol)
		}
	}
	s.symbols[idx] = append(s.symbols[idx], symbol)
	err := s.persistLocked()
	if err != nil {
		// Undo so memory and disk stay in step.
		s.symbols[idx] = s.symbols[idx][:len(s.symbols[idx])-1]
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persisting wishlists: %w", err)
	}
	s.txlog.Append("Added to wishlist %d: %s", idx+1, symbol)
	return nil
}

// Remove deletes a symbol from wishlist idx. Removing an absent symbol is
// a no-op.
func (s *Set) Remove(idx int, symbol string) error {
	if idx < 0 || idx >= Count {
		return fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}

	s.mu.Lock()
	pos := -1
	for i, sym := range s.symbols[idx] {
		if sym == symbol {
			pos = i
			break
		}
	}
	if pos < 0 {
		s.mu.Unlock()
		return nil
	}
	prev := append([]string(nil), s.symbols[idx]...)
	s.symbols[idx] = append(s.symbols[idx][:pos], s.symbols[idx][pos+1:]...)
	err := s.persistLocked()
	if err != nil {
		// Undo so memory and disk stay in step.
		s.symbols[idx] = prev
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persisting wishlists: %w", err)
	}
	s.txlog.Append("Removed from wishlist %d: %s", idx+1, symbol)
	return nil
}

// Rename changes the display name of wishlist idx.
func (s *Set) Rename(idx int, name string) error {
	if idx < 0 || idx >= Count {
		return fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}

	s.mu.Lock()
	prev := s.names[idx]
	s.names[idx] = name
	err := s.persistLocked()
	if err != nil {
		// Undo so memory and disk stay in step.
		s.names[idx] = prev
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("persisting wishlists: %w", err)
	}
	s.txlog.Append("Renamed tab %d to '%s'", idx+1, name)
	return nil
}

// Name returns the display name of wishlist idx.
func (s *Set) Name(idx int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= Count {
		return ""
	}
	return s.names[idx]
}

// Symbols returns a copy of wishlist idx's symbols in display order.
func (s *Set) Symbols(idx int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= Count {
		return nil
	}
	return append([]string(nil), s.symbols[idx]...)
}

// Snapshot returns a deep copy of all wishlists, taken under the lock so
// the poller iterates a consistent view per tick.
func (s *Set) Snapshot() [Count][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out [Count][]string
	for i := range s.symbols {
		out[i] = append([]string(nil), s.symbols[i]...)
	}
	return out
}

// persistLocked saves every wishlist. Callers hold mu.
func (s *Set) persistLocked() error {
	records := make([]store.WishlistRecord, Count)
	for i := range s.symbols {
		records[i] = store.WishlistRecord{
			Index:   i,
			Name:    s.names[i],
			Symbols: append([]string(nil), s.symbols[i]...),
		}
	}
	return s.store.SaveWishlists(records)
}
