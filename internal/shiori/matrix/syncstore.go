package matrix

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// SyncState persists small per-user sync values. *store.Store implements it.
type SyncState interface {
	SyncValue(ctx context.Context, userID, key string) (string, error)
	SetSyncValue(ctx context.Context, userID, key, value string) error
}

const (
	keyFilterID  = "filter_id"
	keyNextBatch = "next_batch"
)

// syncStore adapts SyncState to mautrix.SyncStore, so the /sync position
// survives restarts.
type syncStore struct {
	state SyncState
}

var _ mautrix.SyncStore = syncStore{}

func (s syncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.state.SetSyncValue(ctx, userID.String(), keyFilterID, filterID)
}

func (s syncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.SyncValue(ctx, userID.String(), keyFilterID)
}

func (s syncStore) SaveNextBatch(ctx context.Context, userID id.UserID, token string) error {
	return s.state.SetSyncValue(ctx, userID.String(), keyNextBatch, token)
}

func (s syncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.state.SyncValue(ctx, userID.String(), keyNextBatch)
}
