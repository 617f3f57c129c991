package datastore

import (
	"context"
	"errors"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

var (
	ErrInvalidToken = errors.New("datastore: invalid token")
	ErrTokenExpired = errors.New("datastore: token expired")
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
}

type DataStoreTx interface {
	DataStore
	TokenTransactionProvider
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for accounts, tokens, bans and
// the chat archive. Implementations include the SQLite store and the
// in-memory store used by tests.
type DataStore interface {
	ConfigReadProvider

	AccountReadProvider
	AccountWriteProvider

	TokenReadProvider
	TokenWriteProvider

	BanReadProvider
	BanWriteProvider

	MessageReadProvider
	MessageWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type ConfigReadProvider interface {
	ZeroTime() time.Time
	Close() error
}

type AccountReadProvider interface {
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
}

type AccountWriteProvider interface {
	CreateAccount(ctx context.Context, username string, rank model.Rank) (*model.Account, error)
	UpdateAccountRank(ctx context.Context, accountID int64, rank model.Rank) error
}

type TokenReadProvider interface {
	HasTokens(ctx context.Context) (bool, error)
}

type TokenWriteProvider interface {
	CreateToken(ctx context.Context, hash string, accountID int64, expiresAt time.Time) error
}

// TokenTransactionProvider resolves a token to its account and records the
// use in one transaction.
type TokenTransactionProvider interface {
	ValidateToken(ctx context.Context, hash string) (*model.Account, error)
}

type BanReadProvider interface {
	IsIPBanned(ctx context.Context, ip string, now time.Time) (bool, error)
	ListBans(ctx context.Context) ([]model.Ban, error)
}

type BanWriteProvider interface {
	CreateBan(ctx context.Context, ban *model.Ban) error
	DeleteBan(ctx context.Context, ip string) error
}

type MessageReadProvider interface {
	ListMessages(ctx context.Context, filters model.MessageFilters) ([]model.Message, error)
}

type MessageWriteProvider interface {
	CreateMessage(ctx context.Context, message *model.Message) error
	DeleteMessage(ctx context.Context, messageID int64) error
}
