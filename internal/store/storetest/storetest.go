// Package storetest provides an in-memory SQLite store with the production schema.
package storetest

import (
	"context"
	"testing"

	"stock-ledger/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// New opens a private in-memory database, applies the schema and closes it on cleanup.
// The pool is pinned to one connection: every ":memory:" connection is its own database,
// and a single connection also serializes transactions the way row locks would.
func New(t *testing.T) *store.Store {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	s := store.NewFromDB(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedStore inserts an active store and returns its id
func SeedStore(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	var id int64
	err := s.GetDB().Get(&id, `INSERT INTO stores (name, active) VALUES (?, TRUE) RETURNING id`, name)
	require.NoError(t, err)
	return id
}

// SeedProduct inserts an active product and returns its id
func SeedProduct(t *testing.T, s *store.Store, sku string, price int64) int64 {
	t.Helper()
	var id int64
	err := s.GetDB().Get(&id, `INSERT INTO products (sku, name, price, active) VALUES (?, ?, ?, TRUE) RETURNING id`,
		sku, "Product "+sku, price)
	require.NoError(t, err)
	return id
}

// Deactivate flips the active flag of a store or product row off
func Deactivate(t *testing.T, s *store.Store, table string, id int64) {
	t.Helper()
	_, err := s.GetDB().Exec(`UPDATE `+table+` SET active = FALSE WHERE id = ?`, id)
	require.NoError(t, err)
}
