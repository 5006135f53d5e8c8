package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Advisor produces an advisory opinion for one statically validated claim
type Advisor interface {
	Name() string
	Evaluate(ctx context.Context, claim *model.Claim, rules model.RuleSet) (*model.AdvisoryOpinion, error)
}

// advisoryTargets picks the claims the advisory stage evaluates. Claims
// rejected for data quality never qualify.
func (p *Pipeline) advisoryTargets(batch *model.Batch) []*model.Claim {
	if p.advisor == nil {
		return nil
	}

	var out []*model.Claim
	for _, c := range batch.Claims {
		if len(c.DataQualityErrors) > 0 {
			continue
		}
		switch p.cfg.Advisory.Mode {
		case model.AdvisoryModeAll:
			out = append(out, c)
		case model.AdvisoryModeErrors:
			if c.Status == model.StatusNotValidated {
				out = append(out, c)
			}
		}
	}
	return out
}

// advise evaluates claims concurrently. A failed evaluation is logged and
// counted; the claim keeps its static verdict. Only cancellation of ctx
// fails the stage, after every in-flight call has returned.
func (p *Pipeline) advise(ctx context.Context, batch *model.Batch, claims []*model.Claim, rules model.RuleSet) (map[*model.Claim]*model.AdvisoryOpinion, error) {
	opinions := make([]*model.AdvisoryOpinion, len(claims))

	workers := p.cfg.Advisory.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range claims {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			op, err := p.advisor.Evaluate(gctx, c, rules)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn().
					Err(err).
					Str("batch_id", batch.BatchID).
					Str("claim_id", c.ClaimID).
					Dur("elapsed", time.Since(start)).
					Msg("advisory evaluation failed, keeping static verdict")
				return nil
			}
			opinions[i] = op
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[*model.Claim]*model.AdvisoryOpinion, len(claims))
	for i, c := range claims {
		if opinions[i] != nil {
			out[c] = opinions[i]
			batch.Metrics.AdvisoryEvaluated++
		} else {
			batch.Metrics.AdvisoryFailed++
		}
	}
	return out, nil
}
