package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

// Store retrieves per-user policies, creating the default-tier policy for
// users seen for the first time.
type Store struct {
	store  storage.PolicyStore
	logger *slog.Logger
}

// NewStore wraps a PolicyStore.
func NewStore(store storage.PolicyStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{store: store, logger: logger}
}

// GetOrCreate returns the user's policy. A missing row is created with the
// free-tier defaults (idempotent under concurrent creation). Retrieval
// errors fall back to the free defaults rather than failing the request;
// only a failed insertion surfaces as an error.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*models.UserPolicy, error) {
	policy, err := s.store.Get(ctx, userID)
	if err == nil {
		return policy, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("policy retrieval failed, using default tier", "user_id", userID, "error", err)
		return DefaultPolicy(userID, DefaultTier), nil
	}

	fresh := DefaultPolicy(userID, DefaultTier)
	if err := s.store.Create(ctx, fresh); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Lost a creation race; the winner's row is authoritative.
			if existing, err := s.store.Get(ctx, userID); err == nil {
				return existing, nil
			}
			return fresh, nil
		}
		return nil, fmt.Errorf("create default policy: %w", err)
	}
	return fresh, nil
}
