package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

func (p *baseProvider) ZeroTime() time.Time {
	return time.Time{}
}

func (p *baseProvider) Close() error {
	return nil
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory hands out transactional and non-transactional providers
// over one SQLite database.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{
			DB: sf.DB,
		},
	}
}

func (sf ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &txProvider{
		baseProvider: baseProvider{
			DB: tx,
		},
		tx: tx,
	}, nil
}

// ValidateToken runs the token check in its own transaction.
func (sf ProviderFactory) ValidateToken(ctx context.Context, hash string) (*model.Account, error) {
	tx, err := sf.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin: %w", err)
	}
	return tx.ValidateToken(ctx, hash)
}

// NewProviderFactory opens (or creates) a SQLite database and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	DB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode so chat archive writes do not block ban lookups
	if _, err := DB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set WAL: %w", err)
	}
	if _, err := DB.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := DB.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: set busy_timeout: %w", err)
	}

	s := &ProviderFactory{DB: DB}
	if err := s.migrate(ctx); err != nil {
		_ = DB.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *ProviderFactory) Close() error {
	return s.DB.Close()
}

func (s *ProviderFactory) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		username   TEXT    NOT NULL UNIQUE CHECK(length(username) >= 3 AND length(username) <= 20),
		rank       INTEGER NOT NULL DEFAULT 1 CHECK(rank >= 0 AND rank <= 3),
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS tokens (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		hash         TEXT    NOT NULL UNIQUE,
		account_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		use_count    INTEGER NOT NULL DEFAULT 0,
		last_used_at TEXT,
		expires_at   TEXT,
		created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS bans (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		ip         TEXT    NOT NULL,
		username   TEXT    NOT NULL DEFAULT '',
		reason     TEXT    NOT NULL DEFAULT '',
		banned_by  TEXT    NOT NULL DEFAULT '',
		expires_at TEXT,
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		node       TEXT    NOT NULL DEFAULT '',
		username   TEXT    NOT NULL DEFAULT '',
		ip         TEXT    NOT NULL DEFAULT '',
		body       TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_bans_ip ON bans(ip)",
				"CREATE INDEX IF NOT EXISTS idx_messages_node ON messages(node, id)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (s *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func (s *ProviderFactory) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("datastore: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := formatDBTime(t)
	return &s
}

// ---- Accounts ----

// CreateAccount creates a new account and returns it with the assigned ID.
// It validates the username format and rank before inserting.
func (s *baseProvider) CreateAccount(ctx context.Context, username string, rank model.Rank) (*model.Account, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("datastore: create account: %w", err)
	}
	if !rank.Valid() {
		return nil, fmt.Errorf("datastore: create account: %w", model.ErrInvalidRank)
	}
	res, err := s.ExecContext(ctx, "INSERT INTO accounts (username, rank) VALUES (?, ?)", username, int(rank))
	if err != nil {
		return nil, fmt.Errorf("datastore: create account: %w", err)
	}
	id, _ := res.LastInsertId()
	return &model.Account{
		ID:        id,
		Username:  username,
		Rank:      rank,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *baseProvider) getAccount(ctx context.Context, where string, arg any) (*model.Account, error) {
	a := &model.Account{}
	var rankInt int
	var createdAt string
	err := s.QueryRowContext(ctx, "SELECT id, username, rank, created_at FROM accounts WHERE "+where+" = ?", arg).
		Scan(&a.ID, &a.Username, &rankInt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get account: %w", err)
	}
	a.Rank = model.Rank(rankInt)
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("datastore: get account: %w", err)
	}
	a.CreatedAt = parsed
	return a, nil
}

// GetAccountByUsername retrieves an account by username. Returns (nil, nil)
// if not found.
func (s *baseProvider) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.getAccount(ctx, "username", username)
}

// GetAccountByID retrieves an account by ID. Returns (nil, nil) if not found.
func (s *baseProvider) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	return s.getAccount(ctx, "id", id)
}

// UpdateAccountRank changes an account's rank.
func (s *baseProvider) UpdateAccountRank(ctx context.Context, accountID int64, rank model.Rank) error {
	if !rank.Valid() {
		return fmt.Errorf("datastore: update account rank: %w", model.ErrInvalidRank)
	}
	_, err := s.ExecContext(ctx, "UPDATE accounts SET rank = ? WHERE id = ?", int(rank), accountID)
	if err != nil {
		return fmt.Errorf("datastore: update account rank: %w", err)
	}
	return nil
}

// ListAccounts returns all accounts.
func (s *baseProvider) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.QueryContext(ctx, "SELECT id, username, rank, created_at FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		var rankInt int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Username, &rankInt, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan account: %w", err)
		}
		a.Rank = model.Rank(rankInt)
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan account: %w", err)
		}
		a.CreatedAt = parsed
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// ---- Tokens ----

// HasTokens returns true if any tokens exist in the database.
func (s *baseProvider) HasTokens(ctx context.Context) (bool, error) {
	var count int
	err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM tokens").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("datastore: count tokens: %w", err)
	}
	return count > 0, nil
}

// CreateToken stores a new token (hash only) for an account.
func (s *baseProvider) CreateToken(ctx context.Context, hash string, accountID int64, expiresAt time.Time) error {
	_, err := s.ExecContext(ctx,
		"INSERT INTO tokens (hash, account_id, expires_at) VALUES (?, ?, ?)",
		hash, accountID, nullableTime(expiresAt))
	if err != nil {
		return fmt.Errorf("datastore: create token: %w", err)
	}
	return nil
}

// ValidateToken checks a token hash and returns the owning account. It
// records the use and commits; on any failure the transaction is rolled back.
func (s *txProvider) ValidateToken(ctx context.Context, hash string) (*model.Account, error) {
	defer func() { _ = s.Rollback() }()

	var accountID int64
	var expiresAt *string
	err := s.QueryRowContext(ctx,
		"SELECT account_id, expires_at FROM tokens WHERE hash = ?", hash).
		Scan(&accountID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: validate token: %w", err)
	}

	now := time.Now().UTC()
	if expiresAt != nil {
		exp, err := parseDBTime(*expiresAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: validate token: %w", err)
		}
		if now.After(exp) {
			return nil, ErrTokenExpired
		}
	}

	account, err := s.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrInvalidToken
	}

	if _, err := s.ExecContext(ctx,
		"UPDATE tokens SET use_count = use_count + 1, last_used_at = ? WHERE hash = ?",
		formatDBTime(now), hash); err != nil {
		return nil, fmt.Errorf("datastore: record token use: %w", err)
	}

	if err := s.Commit(); err != nil {
		return nil, fmt.Errorf("datastore: commit: %w", err)
	}

	return account, nil
}

// ---- Bans ----

// CreateBan adds a ban record.
func (s *baseProvider) CreateBan(ctx context.Context, ban *model.Ban) error {
	if ban.IP == "" {
		return fmt.Errorf("datastore: create ban: empty ip")
	}
	res, err := s.ExecContext(ctx,
		"INSERT INTO bans (ip, username, reason, banned_by, expires_at) VALUES (?, ?, ?, ?, ?)",
		ban.IP, ban.Username, ban.Reason, ban.BannedBy, nullableTime(ban.ExpiresAt))
	if err != nil {
		return fmt.Errorf("datastore: create ban: %w", err)
	}
	ban.ID, _ = res.LastInsertId()
	ban.CreatedAt = time.Now().UTC()
	return nil
}

// DeleteBan lifts every ban on ip.
func (s *baseProvider) DeleteBan(ctx context.Context, ip string) error {
	if _, err := s.ExecContext(ctx, "DELETE FROM bans WHERE ip = ?", ip); err != nil {
		return fmt.Errorf("datastore: delete ban: %w", err)
	}
	return nil
}

// IsIPBanned checks if ip has a ban in force at now.
func (s *baseProvider) IsIPBanned(ctx context.Context, ip string, now time.Time) (bool, error) {
	var count int
	err := s.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bans WHERE ip = ? AND (expires_at IS NULL OR expires_at > ?)",
		ip, formatDBTime(now)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("datastore: check ban: %w", err)
	}
	return count > 0, nil
}

// ListBans returns every ban record, oldest first.
func (s *baseProvider) ListBans(ctx context.Context) ([]model.Ban, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT id, ip, username, reason, banned_by, expires_at, created_at FROM bans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("datastore: list bans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bans []model.Ban
	for rows.Next() {
		var b model.Ban
		var expiresAt *string
		var createdAt string
		if err := rows.Scan(&b.ID, &b.IP, &b.Username, &b.Reason, &b.BannedBy, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan ban: %w", err)
		}
		if expiresAt != nil {
			exp, err := parseDBTime(*expiresAt)
			if err != nil {
				return nil, fmt.Errorf("datastore: scan ban: %w", err)
			}
			b.ExpiresAt = exp
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan ban: %w", err)
		}
		b.CreatedAt = parsed
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// ---- Messages ----

// CreateMessage archives a chat line.
func (s *baseProvider) CreateMessage(ctx context.Context, message *model.Message) error {
	if err := message.Validate(); err != nil {
		return fmt.Errorf("datastore: message failed validation: %w", err)
	}

	res, err := s.ExecContext(ctx,
		"INSERT INTO messages (node, username, ip, body) VALUES (?, ?, ?, ?)",
		message.Node, message.Username, message.IP, message.Body)
	if err != nil {
		return fmt.Errorf("datastore: create message: %w", err)
	}
	message.ID, _ = res.LastInsertId()
	message.CreatedAt = time.Now().UTC()

	return nil
}

// ListMessages returns archived chat lines, newest first.
func (s *baseProvider) ListMessages(ctx context.Context, filters model.MessageFilters) ([]model.Message, error) {
	query := `
		SELECT id, node, username, ip, body, created_at
		FROM messages
		WHERE (? IS NULL OR node = ?)
		AND (? IS NULL OR username = ?)
		ORDER BY id DESC
		LIMIT COALESCE(?, 100)
		OFFSET COALESCE(?, 0)
	`

	rows, err := s.QueryContext(ctx, query,
		filters.LimitToNode, filters.LimitToNode,
		filters.LimitToUsername, filters.LimitToUsername,
		filters.PageSize,
		filters.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Node, &m.Username, &m.IP, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		m.CreatedAt = parsed
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteMessage removes an archived chat line.
func (s *baseProvider) DeleteMessage(ctx context.Context, messageID int64) error {
	_, err := s.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID)
	if err != nil {
		return fmt.Errorf("datastore: delete message: %w", err)
	}
	return nil
}
