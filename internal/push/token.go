// Package push keeps the device token this install registered for push
// notifications. Registration itself happens elsewhere; the session layer only
// reads the token to unregister it on logout.
package push

import (
	"context"
	"fmt"

	"github.com/oeee-cafe/oeee-client/internal/kv"
)

const deviceTokenKey = "device_token"

// TokenStore persists the device token in a kv namespace.
type TokenStore struct {
	store kv.Store
}

// NewTokenStore keeps the token in store.
func NewTokenStore(store kv.Store) *TokenStore {
	return &TokenStore{store: store}
}

// Token returns the stored device token, or "" when none is set.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	token, _, err := s.store.Get(ctx, deviceTokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read device token: %w", err)
	}

	return token, nil
}

func (s *TokenStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	if err := s.store.Put(ctx, deviceTokenKey, token); err != nil {
		return fmt.Errorf("failed to store device token: %w", err)
	}

	return nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, deviceTokenKey); err != nil {
		return fmt.Errorf("failed to clear device token: %w", err)
	}

	return nil
}
