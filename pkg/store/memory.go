package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/datastore"
	"github.com/NicolasHaas/gocollab/pkg/model"
)

// MemoryStore provides an in-memory Store implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextAccountID int64
	nextTokenID   int64
	nextBanID     int64
	nextMessageID int64

	accountsByID       map[int64]*model.Account
	accountsByUsername map[string]*model.Account
	tokensByHash       map[string]*model.Token
	bans               []model.Ban
	messages           []model.Message
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:                now,
		nextAccountID:      1,
		nextTokenID:        1,
		nextBanID:          1,
		nextMessageID:      1,
		accountsByID:       make(map[int64]*model.Account),
		accountsByUsername: make(map[string]*model.Account),
		tokensByHash:       make(map[string]*model.Token),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// ZeroTime returns the zero time value (used for no-expiry tokens).
func (s *MemoryStore) ZeroTime() time.Time {
	return time.Time{}
}

// ---- Accounts ----

// CreateAccount creates a new account and returns it with the assigned ID.
func (s *MemoryStore) CreateAccount(_ context.Context, username string, rank model.Rank) (*model.Account, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("store: create account: %w", err)
	}
	if !rank.Valid() {
		return nil, fmt.Errorf("store: create account: %w", model.ErrInvalidRank)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accountsByUsername[username]; exists {
		return nil, fmt.Errorf("store: create account: constraint failed: UNIQUE constraint failed: accounts.username")
	}
	account := &model.Account{
		ID:        s.nextAccountID,
		Username:  username,
		Rank:      rank,
		CreatedAt: s.now().UTC(),
	}
	s.nextAccountID++
	s.accountsByID[account.ID] = account
	s.accountsByUsername[username] = account
	copyAccount := *account
	return &copyAccount, nil
}

// GetAccountByUsername retrieves an account by username.
func (s *MemoryStore) GetAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accountsByUsername[username]
	if !ok {
		return nil, nil
	}
	copyAccount := *account
	return &copyAccount, nil
}

// GetAccountByID retrieves an account by ID.
func (s *MemoryStore) GetAccountByID(_ context.Context, id int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accountsByID[id]
	if !ok {
		return nil, nil
	}
	copyAccount := *account
	return &copyAccount, nil
}

// UpdateAccountRank changes an account's rank.
func (s *MemoryStore) UpdateAccountRank(_ context.Context, accountID int64, rank model.Rank) error {
	if !rank.Valid() {
		return fmt.Errorf("store: update account rank: %w", model.ErrInvalidRank)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accountsByID[accountID]; ok {
		account.Rank = rank
	}
	return nil
}

// ListAccounts returns all accounts.
func (s *MemoryStore) ListAccounts(context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]model.Account, 0, len(s.accountsByID))
	for _, account := range s.accountsByID {
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

// ---- Tokens ----

// HasTokens returns true if any tokens exist.
func (s *MemoryStore) HasTokens(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokensByHash) > 0, nil
}

// CreateToken stores a new token hash for an account.
func (s *MemoryStore) CreateToken(_ context.Context, hash string, accountID int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tokensByHash[hash]; exists {
		return fmt.Errorf("store: create token: constraint failed: UNIQUE constraint failed: tokens.hash")
	}
	if _, ok := s.accountsByID[accountID]; !ok {
		return fmt.Errorf("store: create token: constraint failed: FOREIGN KEY constraint failed")
	}
	s.tokensByHash[hash] = &model.Token{
		ID:        s.nextTokenID,
		Hash:      hash,
		AccountID: accountID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	s.nextTokenID++
	return nil
}

// ValidateToken resolves a token hash to its account.
func (s *MemoryStore) ValidateToken(_ context.Context, hash string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokensByHash[hash]
	if !ok {
		return nil, datastore.ErrInvalidToken
	}
	if token.IsExpired(s.now()) {
		return nil, datastore.ErrTokenExpired
	}
	account, ok := s.accountsByID[token.AccountID]
	if !ok {
		return nil, datastore.ErrInvalidToken
	}
	copyAccount := *account
	return &copyAccount, nil
}

// ---- Bans ----

// CreateBan adds a ban record.
func (s *MemoryStore) CreateBan(_ context.Context, ban *model.Ban) error {
	if ban.IP == "" {
		return fmt.Errorf("store: create ban: empty ip")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ban.ID = s.nextBanID
	ban.CreatedAt = s.now().UTC()
	s.nextBanID++
	s.bans = append(s.bans, *ban)
	return nil
}

// DeleteBan lifts every ban on ip.
func (s *MemoryStore) DeleteBan(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.bans[:0]
	for _, b := range s.bans {
		if b.IP != ip {
			kept = append(kept, b)
		}
	}
	s.bans = kept
	return nil
}

// IsIPBanned checks if ip has a ban in force at now.
func (s *MemoryStore) IsIPBanned(_ context.Context, ip string, now time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.bans {
		if s.bans[i].IP == ip && s.bans[i].Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// ListBans returns every ban record, oldest first.
func (s *MemoryStore) ListBans(context.Context) ([]model.Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Ban(nil), s.bans...), nil
}

// ---- Messages ----

// CreateMessage archives a chat line.
func (s *MemoryStore) CreateMessage(_ context.Context, message *model.Message) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("store: message failed validation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	message.ID = s.nextMessageID
	message.CreatedAt = s.now().UTC()
	s.nextMessageID++
	s.messages = append(s.messages, *message)
	return nil
}

// ListMessages returns archived chat lines, newest first.
func (s *MemoryStore) ListMessages(_ context.Context, filters model.MessageFilters) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit, offset := int64(100), int64(0)
	if filters.PageSize != nil {
		limit = *filters.PageSize
	}
	if filters.Offset != nil {
		offset = *filters.Offset
	}

	var out []model.Message
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if filters.LimitToNode != nil && m.Node != *filters.LimitToNode {
			continue
		}
		if filters.LimitToUsername != nil && m.Username != *filters.LimitToUsername {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if int64(len(out)) >= limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteMessage removes an archived chat line.
func (s *MemoryStore) DeleteMessage(_ context.Context, messageID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	return nil
}
