package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SyncValue returns the transport sync value stored under (userID, key), or
// "" when nothing was saved yet.
func (s *Store) SyncValue(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM matrix_sync_state WHERE user_id = ? AND key = ?", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load sync %s: %w", key, err)
	}
	return value, nil
}

// SetSyncValue upserts a transport sync value.
func (s *Store) SetSyncValue(ctx context.Context, userID, key, value string) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO matrix_sync_state (user_id, key, value)
		VALUES (:user_id, :key, :value)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, map[string]any{"user_id": userID, "key": key, "value": value})
	if err != nil {
		return fmt.Errorf("failed to save sync %s: %w", key, err)
	}
	return nil
}
