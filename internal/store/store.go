// Package store persists engine state — accounts, wishlists, and strategy
// definitions — as whole collections with exact round-trip semantics: a
// save followed by a load in a fresh process restores identical state.
package store

// AccountRecord is the persisted form of one registered account.
// Position preserves registration order.
type AccountRecord struct {
	Position    int
	ID          string
	APIKey      string
	APISecret   string
	AccessToken string
}

// WishlistRecord is the persisted form of one wishlist: its display name
// and symbols in display order.
type WishlistRecord struct {
	Index   int
	Name    string
	Symbols []string
}

// StrategyRecord is the persisted form of one strategy definition. Params
// is the JSON encoding of the kind-specific parameters; the strategy
// package owns its schema.
type StrategyRecord struct {
	ID          int64
	Name        string
	Kind        string
	Enabled     bool
	Params      []byte
	Instruments []string
}

// AccountStore persists the account collection.
type AccountStore interface {
	SaveAccounts(records []AccountRecord) error
	LoadAccounts() ([]AccountRecord, error)
}

// WishlistStore persists the wishlist collection.
type WishlistStore interface {
	SaveWishlists(records []WishlistRecord) error
	LoadWishlists() ([]WishlistRecord, error)
}

// StrategyStore persists the strategy collection.
type StrategyStore interface {
	SaveStrategies(records []StrategyRecord) error
	LoadStrategies() ([]StrategyRecord, error)
}
