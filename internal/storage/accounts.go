package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const accountColumns = "id, user_id, provider, username, feed_url, last_synced_at, created_at"

// UpsertLinkedAccount creates the account or, when the user already linked
// this provider, replaces its username and feed URL. The watermark and id of
// an existing row are preserved and copied back into account.
func (s *SQLiteStore) UpsertLinkedAccount(ctx context.Context, account *LinkedAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO linked_accounts (id, user_id, provider, username, feed_url)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, provider) DO UPDATE SET
		   username = excluded.username,
		   feed_url = excluded.feed_url`,
		account.ID, account.UserID, string(account.Provider), account.Username, account.FeedURL,
	)
	if err != nil {
		return fmt.Errorf("upsert linked account: %w", err)
	}
	stored, err := s.GetLinkedAccount(ctx, account.UserID, account.Provider)
	if err != nil {
		return fmt.Errorf("reload linked account: %w", err)
	}
	*account = *stored
	return nil
}

// GetLinkedAccount returns the user's account for provider, or ErrNotFound.
func (s *SQLiteStore) GetLinkedAccount(ctx context.Context, userID string, provider Provider) (*LinkedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM linked_accounts WHERE user_id = ? AND provider = ?",
		userID, string(provider),
	)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get linked account: %w", err)
	}
	return a, nil
}

// ListLinkedAccounts returns every linked account, oldest first.
func (s *SQLiteStore) ListLinkedAccounts(ctx context.Context) ([]LinkedAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM linked_accounts ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ListUserLinkedAccounts returns the accounts linked by a single user.
func (s *SQLiteStore) ListUserLinkedAccounts(ctx context.Context, userID string) ([]LinkedAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM linked_accounts WHERE user_id = ? ORDER BY provider",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user linked accounts: %w", err)
	}
	return collectAccounts(rows)
}

// MarkAccountSynced advances the sync watermark for an account.
func (s *SQLiteStore) MarkAccountSynced(ctx context.Context, accountID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE linked_accounts SET last_synced_at = ? WHERE id = ?",
		at.UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("mark account synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLinkedAccount unlinks a provider. Consumption rows already imported
// through the account are kept.
func (s *SQLiteStore) DeleteLinkedAccount(ctx context.Context, userID string, provider Provider) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM linked_accounts WHERE user_id = ? AND provider = ?",
		userID, string(provider),
	)
	if err != nil {
		return fmt.Errorf("delete linked account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*LinkedAccount, error) {
	var a LinkedAccount
	var provider string
	var lastSynced sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &provider, &a.Username, &a.FeedURL, &lastSynced, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Provider = Provider(provider)
	a.LastSyncedAt = nullableTime(lastSynced)
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]LinkedAccount, error) {
	defer rows.Close()
	var accounts []LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}
