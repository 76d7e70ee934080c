// Package sqlite provides a SQLite-backed user.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pairkit/server/user"
	"github.com/pairkit/server/user/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) GetByWallet(ctx context.Context, address string) (user.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, wallet_address, referral_code, referred_by, created_at
		   FROM users
		  WHERE wallet_address = ?`,
		address,
	)

	var u user.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.WalletAddress, &u.ReferralCode, &u.ReferredBy, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user by wallet: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (s *Store) Create(ctx context.Context, u user.User) error {
	if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.WalletAddress) == "" {
		return fmt.Errorf("user id and wallet address are required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, wallet_address, referral_code, referred_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.WalletAddress, u.ReferralCode, u.ReferredBy, toMillis(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) SaveConnection(ctx context.Context, c user.Connection) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO wallet_connections (id, user_id, wallet_address, wallet_kind, connected_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.WalletAddress, c.WalletKind, toMillis(c.ConnectedAt),
	)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}

func (s *Store) ListConnections(ctx context.Context, userID string) ([]user.Connection, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, wallet_address, wallet_kind, connected_at
		   FROM wallet_connections
		  WHERE user_id = ?
		  ORDER BY connected_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	conns := []user.Connection{}
	for rows.Next() {
		var c user.Connection
		var connectedAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.WalletAddress, &c.WalletKind, &connectedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c.ConnectedAt = fromMillis(connectedAt)
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return conns, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ user.Store = (*Store)(nil)
