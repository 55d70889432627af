package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ AccountStore = (*SQLiteStore)(nil)
var _ WishlistStore = (*SQLiteStore)(nil)
var _ StrategyStore = (*SQLiteStore)(nil)

// SQLiteStore implements AccountStore, WishlistStore, and StrategyStore
// backed by a SQLite database. Each save replaces the whole collection in a
// single transaction.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	position     INTEGER PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	api_key      TEXT NOT NULL,
	api_secret   TEXT NOT NULL,
	access_token TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS wishlists (
	idx  INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS wishlist_symbols (
	wishlist_idx INTEGER NOT NULL,
	position     INTEGER NOT NULL,
	symbol       TEXT NOT NULL,
	PRIMARY KEY (wishlist_idx, position)
);
CREATE TABLE IF NOT EXISTS strategies (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	kind        TEXT NOT NULL,
	enabled     INTEGER NOT NULL,
	params      TEXT NOT NULL,
	instruments TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// the schema if needed, and returns a ready-to-use store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// replaceAll runs fn inside a transaction after clearing the named tables.
func (s *SQLiteStore) replaceAll(tables []string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// AccountStore implementation
// ---------------------------------------------------------------------------

// SaveAccounts replaces the persisted account collection.
func (s *SQLiteStore) SaveAccounts(records []AccountRecord) error {
	return s.replaceAll([]string{"accounts"}, func(tx *sql.Tx) error {
		for _, r := range records {
			_, err := tx.Exec(
				`INSERT INTO accounts (position, id, api_key, api_secret, access_token) VALUES (?, ?, ?, ?, ?)`,
				r.Position, r.ID, r.APIKey, r.APISecret, r.AccessToken)
			if err != nil {
				return fmt.Errorf("inserting account %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// LoadAccounts returns all persisted accounts in registration order.
func (s *SQLiteStore) LoadAccounts() ([]AccountRecord, error) {
	rows, err := s.db.Query(`SELECT position, id, api_key, api_secret, access_token FROM accounts ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountRecord
	for rows.Next() {
		var r AccountRecord
		if err := rows.Scan(&r.Position, &r.ID, &r.APIKey, &r.APISecret, &r.AccessToken); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// WishlistStore implementation
// ---------------------------------------------------------------------------

// SaveWishlists replaces the persisted wishlist collection.
func (s *SQLiteStore) SaveWishlists(records []WishlistRecord) error {
	return s.replaceAll([]string{"wishlists", "wishlist_symbols"}, func(tx *sql.Tx) error {
		for _, r := range records {
			if _, err := tx.Exec(`INSERT INTO wishlists (idx, name) VALUES (?, ?)`, r.Index, r.Name); err != nil {
				return fmt.Errorf("inserting wishlist %d: %w", r.Index, err)
			}
			for pos, sym := range r.Symbols {
				_, err := tx.Exec(
					`INSERT INTO wishlist_symbols (wishlist_idx, position, symbol) VALUES (?, ?, ?)`,
					r.Index, pos, sym)
				if err != nil {
					return fmt.Errorf("inserting wishlist %d symbol %s: %w", r.Index, sym, err)
				}
			}
		}
		return nil
	})
}

// LoadWishlists returns all persisted wishlists with symbols in display
// order.
func (s *SQLiteStore) LoadWishlists() ([]WishlistRecord, error) {
	rows, err := s.db.Query(`SELECT idx, name FROM wishlists ORDER BY idx`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WishlistRecord
	for rows.Next() {
		var r WishlistRecord
		if err := rows.Scan(&r.Index, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		symRows, err := s.db.Query(
			`SELECT symbol FROM wishlist_symbols WHERE wishlist_idx = ? ORDER BY position`, out[i].Index)
		if err != nil {
			return nil, err
		}
		for symRows.Next() {
			var sym string
			if err := symRows.Scan(&sym); err != nil {
				symRows.Close()
				return nil, err
			}
			out[i].Symbols = append(out[i].Symbols, sym)
		}
		if err := symRows.Err(); err != nil {
			symRows.Close()
			return nil, err
		}
		symRows.Close()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// StrategyStore implementation
// ---------------------------------------------------------------------------

// SaveStrategies replaces the persisted strategy collection.
func (s *SQLiteStore) SaveStrategies(records []StrategyRecord) error {
	return s.replaceAll([]string{"strategies"}, func(tx *sql.Tx) error {
		for _, r := range records {
			instruments, err := json.Marshal(r.Instruments)
			if err != nil {
				return fmt.Errorf("encoding instruments for strategy %d: %w", r.ID, err)
			}
			_, err = tx.Exec(
				`INSERT INTO strategies (id, name, kind, enabled, params, instruments) VALUES (?, ?, ?, ?, ?, ?)`,
				r.ID, r.Name, r.Kind, boolToInt(r.Enabled), string(r.Params), string(instruments))
			if err != nil {
				return fmt.Errorf("inserting strategy %d: %w", r.ID, err)
			}
		}
		return nil
	})
}

// LoadStrategies returns all persisted strategies ordered by ID.
func (s *SQLiteStore) LoadStrategies() ([]StrategyRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, kind, enabled, params, instruments FROM strategies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StrategyRecord
	for rows.Next() {
		var r StrategyRecord
		var enabled int
		var params, instruments string
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &enabled, &params, &instruments); err != nil {
			return nil, err
		}
		r.Enabled = enabled != 0
		r.Params = []byte(params)
		if err := json.Unmarshal([]byte(instruments), &r.Instruments); err != nil {
			return nil, fmt.Errorf("decoding instruments for strategy %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
