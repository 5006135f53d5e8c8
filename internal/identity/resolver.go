package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// HistoryLookup reports which of the given claim ids a tenant has already persisted
type HistoryLookup interface {
	ExistingClaimIDs(ctx context.Context, tenantID string, ids []string) (map[string]struct{}, error)
}

// Resolution is the outcome of resolving a batch's claim ids
type Resolution struct {
	Claims     []*model.Claim // unique ids, in input order
	Rejected   []*model.Claim // ids that kept colliding after suffixing
	Collisions []error
}

// Resolver assigns every claim an id unique within its batch and against
// the tenant's history. Prior records are never renamed.
type Resolver struct {
	history HistoryLookup
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a resolver. A nil history skips the history check.
func NewResolver(history HistoryLookup, logger zerolog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{history: history, logger: logger, metrics: m}
}

// Resolve rewrites claim ids in place. It only fails when the history
// lookup fails; duplicate input never produces an error.
func (r *Resolver) Resolve(ctx context.Context, batchID, tenantID string, claims []*model.Claim) (*Resolution, error) {
	res := &Resolution{}
	rejected := make(map[*model.Claim]error)
	seen := make(map[string]struct{}, len(claims))

	// 1. Synthesize missing ids, trim supplied ones
	for _, c := range claims {
		c.ClaimID = strings.TrimSpace(c.ClaimID)
		if c.ClaimID == "" {
			c.ClaimID = batchID + "_" + strconv.Itoa(c.RowIndex)
			r.metrics.IncrementIdentity("generated")
		}
	}

	// 2. Intra-batch duplicates, left to right
	for _, c := range claims {
		if _, dup := seen[c.ClaimID]; !dup {
			seen[c.ClaimID] = struct{}{}
			continue
		}

		suffixed := c.ClaimID + "_" + strconv.Itoa(c.RowIndex)
		if _, dup := seen[suffixed]; dup {
			rejected[c] = &model.IdentityCollisionError{Key: c.ClaimID, RowIndex: c.RowIndex}
			continue
		}
		r.logger.Debug().Str("claim_id", c.ClaimID).Str("resolved", suffixed).Msg("duplicate claim id in batch")
		r.metrics.IncrementIdentity("batch_suffix")
		c.ClaimID = suffixed
		seen[suffixed] = struct{}{}
	}

	// 3. Collisions with the tenant's history
	if r.history != nil {
		ids := make([]string, 0, len(claims))
		for _, c := range claims {
			if _, bad := rejected[c]; !bad {
				ids = append(ids, c.ClaimID)
			}
		}

		existing, err := r.history.ExistingClaimIDs(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("identity lookup: %w", err)
		}

		if len(existing) > 0 {
			renamed := make(map[*model.Claim]string)
			var candidates []string
			for _, c := range claims {
				if _, bad := rejected[c]; bad {
					continue
				}
				if _, hit := existing[c.ClaimID]; !hit {
					continue
				}
				suffixed := c.ClaimID + "_" + batchID
				renamed[c] = suffixed
				candidates = append(candidates, suffixed)
			}

			// A suffixed id that is itself in history is the second collision
			again, err := r.history.ExistingClaimIDs(ctx, tenantID, candidates)
			if err != nil {
				return nil, fmt.Errorf("identity lookup: %w", err)
			}

			for _, c := range claims {
				suffixed, ok := renamed[c]
				if !ok {
					continue
				}
				_, inHistory := again[suffixed]
				_, inBatch := seen[suffixed]
				if inHistory || inBatch {
					rejected[c] = &model.IdentityCollisionError{Key: c.ClaimID, RowIndex: c.RowIndex}
					continue
				}
				r.metrics.IncrementIdentity("history_suffix")
				c.ClaimID = suffixed
				seen[suffixed] = struct{}{}
			}
		}
	}

	for _, c := range claims {
		err, bad := rejected[c]
		if !bad {
			res.Claims = append(res.Claims, c)
			continue
		}
		r.metrics.IncrementIdentity("collision")
		r.logger.Warn().Err(err).Int("row", c.RowIndex).Msg("claim rejected")
		reject(c, err)
		res.Rejected = append(res.Rejected, c)
		res.Collisions = append(res.Collisions, err)
	}

	return res, nil
}

// reject moves a claim straight to its terminal state
func reject(c *model.Claim, err error) {
	c.DataQualityErrors = append(c.DataQualityErrors, model.Finding{
		RuleName:      "Claim Identity Collision",
		RuleReference: "Claim Identity",
		Detail:        err.Error(),
		Severity:      model.SeverityCritical,
	})
	c.Status = model.StatusNotValidated
	c.ErrorType = model.ErrorTypeDataQuality
	c.ErrorExplanation = "• " + err.Error()
	c.RecommendedAction = "Assign a unique claim ID and resubmit the claim."
}
