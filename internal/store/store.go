// Package store persists claim records and batch results, and answers the
// identity resolver's history lookups.
package store

import (
	"context"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Store is the persistence collaborator of the pipeline
type Store interface {
	// ExistingClaimIDs returns the subset of ids already persisted for the tenant
	ExistingClaimIDs(ctx context.Context, tenantID string, ids []string) (map[string]struct{}, error)

	// BeginBatch records the batch and reserves its claim ids in Processing state
	BeginBatch(ctx context.Context, batch *model.Batch) error

	// CompleteBatch writes every claim's final verdict and the batch metrics
	// as one unit
	CompleteBatch(ctx context.Context, batch *model.Batch) error

	// Batch loads a persisted batch with its claims
	Batch(ctx context.Context, batchID string) (*model.Batch, error)

	Close() error
}
