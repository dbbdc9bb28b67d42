package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// UserIDKey is the local-state key holding the installation's user id.
const UserIDKey = "deeplearn_user_id"

// KV is the durable local state the identity lives in.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// UserID returns the stored user id, creating and storing a new random one on
// first use. A stored value that is not a uuid is replaced.
func UserID(ctx context.Context, kv KV) (string, error) {
	id, ok, err := kv.Get(ctx, UserIDKey)
	if err != nil {
		return "", fmt.Errorf("read user id: %w", err)
	}
	if ok {
		if _, err := uuid.Parse(id); err == nil {
			return id, nil
		}
		slog.Warn("replacing malformed user id", "value", id)
	}
	id = uuid.NewString()
	if err := kv.Set(ctx, UserIDKey, id); err != nil {
		return "", fmt.Errorf("store user id: %w", err)
	}
	slog.Info("created user id", "user_id", id)
	return id, nil
}

// ResetUserID forgets the stored user id so the next session gets a new one.
func ResetUserID(ctx context.Context, kv KV) error {
	if err := kv.Delete(ctx, UserIDKey); err != nil {
		return fmt.Errorf("reset user id: %w", err)
	}
	slog.Info("user id reset")
	return nil
}
