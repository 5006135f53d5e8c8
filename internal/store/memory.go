package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/claimcheck/internal/model"
)

// MemoryStore keeps records in process memory. Claims are stored as deep
// copies so later mutation by the caller does not leak in.
type MemoryStore struct {
	mu      sync.RWMutex
	claims  map[string]map[string]*model.Claim // tenant -> claim id -> record
	batches map[string]*model.Batch
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:  make(map[string]map[string]*model.Claim),
		batches: make(map[string]*model.Batch),
	}
}

// ExistingClaimIDs implements Store
func (s *MemoryStore) ExistingClaimIDs(ctx context.Context, tenantID string, ids []string) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{})
	tenant := s.claims[tenantID]
	for _, id := range ids {
		if _, ok := tenant[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// BeginBatch implements Store
func (s *MemoryStore) BeginBatch(ctx context.Context, batch *model.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[batch.BatchID]; ok {
		return fmt.Errorf("batch %s already exists", batch.BatchID)
	}

	tenant := s.claims[batch.TenantID]
	for _, c := range batch.Claims {
		if _, ok := tenant[c.ClaimID]; ok {
			return &model.IdentityCollisionError{Key: c.ClaimID, RowIndex: c.RowIndex}
		}
	}

	if tenant == nil {
		tenant = make(map[string]*model.Claim)
		s.claims[batch.TenantID] = tenant
	}
	for _, c := range batch.Claims {
		cp, err := copyClaim(c)
		if err != nil {
			return err
		}
		tenant[c.ClaimID] = cp
	}
	s.batches[batch.BatchID] = &model.Batch{
		BatchID:    batch.BatchID,
		TenantID:   batch.TenantID,
		SourceFile: batch.SourceFile,
		Stage:      batch.Stage,
		StageName:  batch.StageName,
		StartedAt:  batch.StartedAt,
	}
	return nil
}

// CompleteBatch implements Store
func (s *MemoryStore) CompleteBatch(ctx context.Context, batch *model.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Copy first so a failure leaves the store untouched
	copies := make([]*model.Claim, 0, len(batch.Claims))
	for _, c := range batch.Claims {
		cp, err := copyClaim(c)
		if err != nil {
			return err
		}
		copies = append(copies, cp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.batches[batch.BatchID]
	if !ok {
		return fmt.Errorf("batch %s: %w", batch.BatchID, model.ErrNotFound)
	}

	tenant := s.claims[batch.TenantID]
	for _, c := range copies {
		tenant[c.ClaimID] = c
	}
	stored.Stage = batch.Stage
	stored.StageName = batch.StageName
	stored.Metrics = batch.Metrics
	stored.CompletedAt = batch.CompletedAt
	return nil
}

// Batch implements Store
func (s *MemoryStore) Batch(ctx context.Context, batchID string) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
	}

	out := *stored
	out.Claims = nil
	for _, c := range s.claims[stored.TenantID] {
		if c.BatchID == batchID {
			cp, err := copyClaim(c)
			if err != nil {
				return nil, err
			}
			out.Claims = append(out.Claims, cp)
		}
	}
	sort.Slice(out.Claims, func(i, j int) bool { return out.Claims[i].RowIndex < out.Claims[j].RowIndex })
	return &out, nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}

func copyClaim(c *model.Claim) (*model.Claim, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("copy claim %s: %w", c.ClaimID, err)
	}
	var out model.Claim
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy claim %s: %w", c.ClaimID, err)
	}
	return &out, nil
}
