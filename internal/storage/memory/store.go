package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
	"github.com/tjfontaine/chat-template-codecs/internal/storage"
)

// Store is an in-memory implementation of InteractionStore
type Store struct {
	mu           sync.RWMutex
	interactions map[string]*domain.Interaction
}

var _ storage.InteractionStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		interactions: make(map[string]*domain.Interaction),
	}
}

func (s *Store) SaveInteraction(ctx context.Context, interaction *domain.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.interactions[interaction.ID]; exists {
		return fmt.Errorf("interaction %s already exists", interaction.ID)
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now()
	}

	cp := *interaction
	s.interactions[interaction.ID] = &cp
	return nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*domain.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	interaction, exists := s.interactions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}

	cp := *interaction
	return &cp, nil
}

// ListInteractions returns summaries, newest first.
func (s *Store) ListInteractions(ctx context.Context, opts domain.InteractionListOptions) ([]*domain.InteractionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.InteractionSummary
	for _, i := range s.interactions {
		if opts.Family != "" && i.Family != opts.Family {
			continue
		}
		if opts.Operation != "" && i.Operation != opts.Operation {
			continue
		}
		result = append(result, &domain.InteractionSummary{
			ID:        i.ID,
			Operation: i.Operation,
			Family:    i.Family,
			Status:    i.Status,
			Duration:  i.Duration,
			CreatedAt: i.CreatedAt,
		})
	}

	sort.Slice(result, func(a, b int) bool {
		if result[a].CreatedAt.Equal(result[b].CreatedAt) {
			return result[a].ID > result[b].ID
		}
		return result[a].CreatedAt.After(result[b].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*domain.InteractionSummary{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}

	return result, nil
}

func (s *Store) Close() error {
	return nil
}
