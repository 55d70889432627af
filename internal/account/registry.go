// Package account holds registered broker accounts, their per-side
// sessions, and the currently selected account for order entry.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"stratagem/internal/broker"
	"stratagem/internal/domain"
	"stratagem/internal/store"
	"stratagem/internal/txlog"
)

var (
	// ErrInvalidCredentials means the validation call failed at
	// registration; the account was not added.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound means no account with the given ID is registered.
	ErrNotFound = errors.New("account not found")

	// ErrDuplicateID means an account with the given ID already exists.
	ErrDuplicateID = errors.New("account id already registered")
)

// Account is one registered broker account. The buy and sell sessions are
// two handles built from the same credentials, kept separate so a future
// implementation can isolate rate limits or permissions per side.
type Account struct {
	ID          string
	APIKey      string
	APISecret   string
	AccessToken string

	Buy  broker.Session
	Sell broker.Session
}

// Registry holds all registered accounts in registration order.
type Registry struct {
	mu       sync.RWMutex
	accounts []*Account

	dialer broker.Dialer
	store  store.AccountStore
	txlog  *txlog.Log
	log    *slog.Logger
}

// NewRegistry creates an empty registry. Accounts persisted by a previous
// process are restored with Restore.
func NewRegistry(dialer broker.Dialer, st store.AccountStore, tl *txlog.Log, logger *slog.Logger) *Registry {
	return &Registry{
		dialer: dialer,
		store:  st,
		txlog:  tl,
		log:    logger.With("component", "accounts"),
	}
}

// Restore loads persisted accounts and rebuilds their sessions without
// re-validating credentials; a stale token surfaces on the first call.
func (r *Registry) Restore() error {
	records, err := r.store.LoadAccounts()
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		creds := broker.Credentials{
			ID:          rec.ID,
			APIKey:      rec.APIKey,
			APISecret:   rec.APISecret,
			AccessToken: rec.AccessToken,
		}
		r.accounts = append(r.accounts, &Account{
			ID:          rec.ID,
			APIKey:      rec.APIKey,
			APISecret:   rec.APISecret,
			AccessToken: rec.AccessToken,
			Buy:         r.dialer.Dial(creds),
			Sell:        r.dialer.Dial(creds),
		})
	}
	r.log.Info("restored accounts", "count", len(records))
	return nil
}

// Register validates the credentials with one lightweight authenticated
// call and, on success, adds the account with fresh buy and sell sessions.
// On failure nothing is added and no session is retained.
func (r *Registry) Register(ctx context.Context, creds broker.Credentials) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.ID == creds.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, creds.ID)
		}
	}

	probe := r.dialer.Dial(creds)
	if _, err := probe.Profile(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	acct := &Account{
		ID:          creds.ID,
		APIKey:      creds.APIKey,
		APISecret:   creds.APISecret,
		AccessToken: creds.AccessToken,
		Buy:         r.dialer.Dial(creds),
		Sell:        r.dialer.Dial(creds),
	}
	r.accounts = append(r.accounts, acct)

	if err := r.persistLocked(); err != nil {
		// Roll back the in-memory add so memory and disk stay in step.
		r.accounts = r.accounts[:len(r.accounts)-1]
		return nil, fmt.Errorf("persisting account %s: %w", creds.ID, err)
	}

	r.txlog.Append("Added account: %s", creds.ID)
	return acct, nil
}

// UpdateToken replaces the access token of an account, propagating it to
// both sessions before the update is considered applied.
func (r *Registry) UpdateToken(id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := r.findLocked(id)
	if acct == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := acct.AccessToken
	acct.AccessToken = token
	acct.Buy.SetAccessToken(token)
	acct.Sell.SetAccessToken(token)

	if err := r.persistLocked(); err != nil {
		acct.AccessToken = prev
		acct.Buy.SetAccessToken(prev)
		acct.Sell.SetAccessToken(prev)
		return fmt.Errorf("persisting token update for %s: %w", id, err)
	}

	r.txlog.Append("Updated token for: %s", id)
	return nil
}

// Resolve returns the account with the given ID.
func (r *Registry) Resolve(id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acct := r.findLocked(id); acct != nil {
		return acct, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SessionFor returns the session of the account matching the order side:
// the buy session for BUY, the sell session for SELL.
func (r *Registry) SessionFor(id string, action domain.Action) (broker.Session, error) {
	acct, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	if action == domain.ActionSell {
		return acct.Sell, nil
	}
	return acct.Buy, nil
}

// List returns all accounts in registration order.
func (r *Registry) List() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Account(nil), r.accounts...)
}

// First returns the first registered account, the process-wide market-data
// source.
func (r *Registry) First() (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.accounts) == 0 {
		return nil, false
	}
	return r.accounts[0], true
}

// findLocked returns the account with the given ID. Callers hold mu.
func (r *Registry) findLocked(id string) *Account {
	for _, a := range r.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// persistLocked saves the current account collection. Callers hold mu.
func (r *Registry) persistLocked() error {
	records := make([]store.AccountRecord, len(r.accounts))
	for i, a := range r.accounts {
		records[i] = store.AccountRecord{
			Position:    i,
			ID:          a.ID,
			APIKey:      a.APIKey,
			APISecret:   a.APISecret,
			AccessToken: a.AccessToken,
		}
	}
	return r.store.SaveAccounts(records)
}
