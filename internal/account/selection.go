package account

import "sync"

// SelectionContext tracks the account currently selected for order entry.
// Manual trades and automated signal execution both consult it, so the
// selection is an explicit dependency rather than ambient state.
type SelectionContext struct {
	mu        sync.Mutex
	accountID string
}

// NewSelectionContext returns an empty selection.
func NewSelectionContext() *SelectionContext {
	return &SelectionContext{}
}

// Select sets the selected account ID.
func (s *SelectionContext) Select(accountID string) {
	s.mu.Lock()
	s.accountID = accountID
	s.mu.Unlock()
}

// Clear removes the selection.
func (s *SelectionContext) Clear() {
	s.Select("")
}

// Selected returns the selected account ID, and whether one is selected.
func (s *SelectionContext) Selected() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID, s.accountID != ""
}
