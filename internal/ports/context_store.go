package ports

import (
	"context"

	"github.com/bnema/deskbridge/internal/domain"
)

// ContextStore persists conversation context snapshots across restarts.
type ContextStore interface {
	Load(ctx context.Context) ([]domain.Context, error)
	Save(ctx context.Context, contexts []domain.Context) error
}
