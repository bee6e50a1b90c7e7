package memory

import (
	"context"
	"database/sql"
	"sync"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// ScoringEventStore is an in-memory store.ScoringEventRepository.
type ScoringEventStore struct {
	mu   sync.RWMutex
	data map[string]*model.ScoringEvent // keyed by id
}

func NewScoringEventStore() *ScoringEventStore {
	return &ScoringEventStore{data: make(map[string]*model.ScoringEvent)}
}

func (s *ScoringEventStore) InsertTx(_ context.Context, _ *sql.Tx, ev *model.ScoringEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[ev.ID]; exists {
		return false, nil
	}
	cp := *ev
	s.data[ev.ID] = &cp
	return true, nil
}

func (s *ScoringEventStore) UpdateTx(_ context.Context, _ *sql.Tx, ev *model.ScoringEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.data[ev.ID] = &cp
	return nil
}

func (s *ScoringEventStore) GetTx(ctx context.Context, _ *sql.Tx, id string) (*model.ScoringEvent, error) {
	return s.Get(ctx, id)
}

func (s *ScoringEventStore) Get(_ context.Context, id string) (*model.ScoringEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, exists := s.data[id]
	if !exists {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (s *ScoringEventStore) LatestByTokenTx(_ context.Context, _ *sql.Tx, domainTokenID string) (*model.ScoringEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.ScoringEvent
	for _, ev := range s.data {
		if ev.DomainTokenID != domainTokenID {
			continue
		}
		if ev.Status == model.ScoringStatusInvalidated || ev.Status == model.ScoringStatusFailed {
			continue
		}
		if latest == nil ||
			ev.BlockNumber > latest.BlockNumber ||
			(ev.BlockNumber == latest.BlockNumber && ev.LogIndex > latest.LogIndex) {
			latest = ev
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

var _ store.ScoringEventRepository = (*ScoringEventStore)(nil)
