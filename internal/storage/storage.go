// Package storage defines the interaction log used to audit codec
// operations served over HTTP.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

// ErrNotFound is returned when an interaction does not exist.
var ErrNotFound = errors.New("interaction not found")

// InteractionStore persists interaction records.
type InteractionStore interface {
	SaveInteraction(ctx context.Context, interaction *domain.Interaction) error
	GetInteraction(ctx context.Context, id string) (*domain.Interaction, error)
	ListInteractions(ctx context.Context, opts domain.InteractionListOptions) ([]*domain.InteractionSummary, error)
	Close() error
}
