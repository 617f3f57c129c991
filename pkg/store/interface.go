// Package store selects the persistence backend used by the server: the
// SQLite datastore or an in-memory store for tests and ephemeral runs.
package store

import (
	"context"
	"fmt"

	"github.com/NicolasHaas/gocollab/pkg/datastore"
	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Store is a DataStore that can also validate login tokens.
type Store interface {
	datastore.DataStore
	datastore.TokenTransactionProvider
}

// Compile-time checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*sqlStore)(nil)
)

// sqlStore runs token validation in its own transaction and everything else
// on the shared connection pool.
type sqlStore struct {
	datastore.DataStore
	factory *datastore.ProviderFactory
}

func (s *sqlStore) ValidateToken(ctx context.Context, hash string) (*model.Account, error) {
	return s.factory.ValidateToken(ctx, hash)
}

func (s *sqlStore) Close() error {
	return s.factory.Close()
}

// Open returns a SQLite store at path, or an in-memory store when path is
// empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	f, err := datastore.NewProviderFactory(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &sqlStore{DataStore: f.NonTx(), factory: f}, nil
}
