package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// SystemEventStore is an in-memory store.SystemEventRepository.
type SystemEventStore struct {
	mu   sync.RWMutex
	rows []model.SystemEvent
}

func NewSystemEventStore() *SystemEventStore {
	return &SystemEventStore{}
}

func (s *SystemEventStore) AppendTx(ctx context.Context, _ *sql.Tx, ev *model.SystemEvent) error {
	return s.Append(ctx, ev)
}

func (s *SystemEventStore) Append(_ context.Context, ev *model.SystemEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, cp)
	return nil
}

// ListByType returns appended events of one type, oldest first. Test helper
// with no SQL counterpart.
func (s *SystemEventStore) ListByType(eventType model.SystemEventType) []model.SystemEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []model.SystemEvent
	for _, ev := range s.rows {
		if ev.EventType == eventType {
			rows = append(rows, ev)
		}
	}
	return rows
}

var _ store.SystemEventRepository = (*SystemEventStore)(nil)

// BatchOperationStore is an in-memory store.BatchOperationRepository.
type BatchOperationStore struct {
	mu   sync.RWMutex
	data map[string]*model.BatchOperation // keyed by batch_id
}

func NewBatchOperationStore() *BatchOperationStore {
	return &BatchOperationStore{data: make(map[string]*model.BatchOperation)}
}

func (s *BatchOperationStore) InsertTx(_ context.Context, _ *sql.Tx, op *model.BatchOperation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[op.BatchID]; exists {
		return false, nil
	}
	cp := *op
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.data[op.BatchID] = &cp
	return true, nil
}

func (s *BatchOperationStore) GetTx(_ context.Context, _ *sql.Tx, batchID string) (*model.BatchOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, exists := s.data[batchID]
	if !exists {
		return nil, nil
	}
	cp := *op
	return &cp, nil
}

func (s *BatchOperationStore) AddScoredTx(_ context.Context, _ *sql.Tx, batchID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, exists := s.data[batchID]
	if !exists {
		return nil
	}
	op.ScoredCount += n
	if op.ScoredCount >= op.TokenCount {
		op.Status = model.BatchOperationCompleted
	}
	op.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.BatchOperationRepository = (*BatchOperationStore)(nil)
