// Package pipeline runs claim batches through the validation stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/identity"
	"github.com/ppiankov/claimcheck/internal/ingest"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/rules"
	"github.com/ppiankov/claimcheck/internal/store"
	"github.com/ppiankov/claimcheck/internal/validate"
)

// Pipeline orchestrates the complete validation run for a batch
type Pipeline struct {
	rules    *rules.Store
	store    store.Store
	resolver *identity.Resolver
	quality  *validate.DataQualityChecker
	advisor  Advisor // nil when advisory evaluation is off
	cfg      *model.Config
	tenants  *cache.KeyedMutex
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	now func() time.Time
}

// NewPipeline creates a pipeline. advisor may be nil; m may be nil.
func NewPipeline(cfg *model.Config, ruleStore *rules.Store, st store.Store, advisor Advisor, logger zerolog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.Advisory.Mode == model.AdvisoryModeOff {
		advisor = nil
	}

	return &Pipeline{
		rules:    ruleStore,
		store:    st,
		resolver: identity.NewResolver(st, logger, m),
		quality:  validate.NewDataQualityChecker(cfg.Validation.ExpectedFields),
		advisor:  advisor,
		cfg:      cfg,
		tenants:  cache.NewKeyedMutex(),
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// NewBatchID returns an id of the form batch_YYYYMMDD_HHMMSS_xxxxxxxx
func NewBatchID(t time.Time) string {
	return "batch_" + t.UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// ValidateFile ingests and validates one file
func (p *Pipeline) ValidateFile(ctx context.Context, tenantID, path string) (*model.Batch, error) {
	records, err := ingest.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
	}
	return p.run(ctx, tenantID, path, records)
}

// Run validates a batch of ingested records for a tenant. On a stage failure
// the partially processed batch is returned together with the error.
func (p *Pipeline) Run(ctx context.Context, tenantID string, records []model.RawRecord) (*model.Batch, error) {
	return p.run(ctx, tenantID, "", records)
}

func (p *Pipeline) run(ctx context.Context, tenantID, source string, records []model.RawRecord) (*model.Batch, error) {
	if tenantID == "" {
		tenantID = p.rules.DefaultTenant()
	}

	started := p.now()
	batch := &model.Batch{
		BatchID:    NewBatchID(started),
		TenantID:   tenantID,
		SourceFile: source,
		StartedAt:  started.UTC(),
	}

	log := p.logger.With().Str("batch_id", batch.BatchID).Str("tenant", tenantID).Logger()
	log.Info().Int("records", len(records)).Str("source", source).Msg("batch started")

	err := p.stages(ctx, batch, records, log)
	if err != nil {
		p.metrics.IncrementBatch(tenantID, "failed")
		log.Error().Err(err).Str("stage", batch.Stage.String()).Msg("batch aborted")
		return batch, err
	}

	p.metrics.IncrementBatch(tenantID, "ok")
	log.Info().
		Int("validated", batch.Metrics.ValidatedClaims).
		Int("not_validated", batch.Metrics.NotValidatedClaims).
		Int("rejected", len(batch.Rejected)).
		Int64("elapsed_ms", batch.Metrics.ProcessingTimeMS).
		Msg("batch completed")
	return batch, nil
}

func (p *Pipeline) stages(ctx context.Context, batch *model.Batch, records []model.RawRecord, log zerolog.Logger) error {
	// 1. Ingested: build claims, resolve identities and reserve them
	start := time.Now()
	if err := p.ingest(ctx, batch, records); err != nil {
		return fmt.Errorf("%s: %w", model.StageIngested, err)
	}
	p.metrics.ObserveStage(model.StageIngested.String(), time.Since(start))

	// 2. Data quality
	start = time.Now()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", model.StageDataQualityChecked, err)
	}
	flagged := 0
	for _, c := range batch.Claims {
		if findings := p.quality.Check(c); len(findings) > 0 {
			rejectDataQuality(c, findings)
			flagged++
		}
	}
	if err := batch.Advance(model.StageDataQualityChecked); err != nil {
		return err
	}
	p.metrics.ObserveStage(model.StageDataQualityChecked.String(), time.Since(start))
	log.Debug().Int("flagged", flagged).Msg("data quality checked")

	// 3. Static validation against one rule snapshot for the whole batch
	start = time.Now()
	ruleSet, err := p.ruleSet(ctx, batch.TenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", model.StageStaticallyValidated, err)
	}
	technical, err := p.technicalEngine(ruleSet.Technical, log)
	if err != nil {
		return fmt.Errorf("%s: %w", model.StageStaticallyValidated, err)
	}
	var medical *validate.MedicalEngine
	if p.cfg.Validation.MedicalEngine {
		medical = validate.NewMedicalEngine(ruleSet.Medical)
	}
	for _, c := range batch.Claims {
		if len(c.DataQualityErrors) > 0 {
			continue
		}
		c.TechnicalErrors, c.TechnicalPassed = technical.Validate(c)
		if medical != nil {
			c.MedicalErrors = medical.Validate(c)
		}
		aggregate(c)
	}
	if err := batch.Advance(model.StageStaticallyValidated); err != nil {
		return err
	}
	p.metrics.ObserveStage(model.StageStaticallyValidated.String(), time.Since(start))

	// 4. Advisory evaluation (optional)
	var opinions map[*model.Claim]*model.AdvisoryOpinion
	if targets := p.advisoryTargets(batch); len(targets) > 0 {
		start = time.Now()
		opinions, err = p.advise(ctx, batch, targets, ruleSet)
		if err != nil {
			return fmt.Errorf("%s: %w", model.StageAdvisoryEvaluated, err)
		}
		if err := batch.Advance(model.StageAdvisoryEvaluated); err != nil {
			return err
		}
		p.metrics.ObserveStage(model.StageAdvisoryEvaluated.String(), time.Since(start))
		log.Debug().
			Int("evaluated", batch.Metrics.AdvisoryEvaluated).
			Int("failed", batch.Metrics.AdvisoryFailed).
			Msg("advisory evaluated")
	}

	// 5. Reconciled
	start = time.Now()
	for _, c := range batch.Claims {
		if op, ok := opinions[c]; ok {
			Reconcile(c, op)
		}
		if err := c.Err(); err != nil {
			log.Debug().Err(err).Str("claim_id", c.ClaimID).Str("error_type", string(c.ErrorType)).Msg("claim not validated")
		}
		batch.Metrics.Add(c)
	}
	for _, c := range batch.Rejected {
		batch.Metrics.Add(c)
	}
	batch.Metrics.IdentityRejected = len(batch.Rejected)
	if err := batch.Advance(model.StageReconciled); err != nil {
		return err
	}
	p.metrics.ObserveStage(model.StageReconciled.String(), time.Since(start))

	// 6. Persisted
	start = time.Now()
	completed := p.now().UTC()
	batch.CompletedAt = &completed
	batch.Metrics.ProcessingTimeMS = completed.Sub(batch.StartedAt).Milliseconds()
	if err := batch.Advance(model.StagePersisted); err != nil {
		return err
	}
	if err := p.store.CompleteBatch(ctx, batch); err != nil {
		batch.Stage = model.StageReconciled
		batch.StageName = model.StageReconciled.String()
		batch.CompletedAt = nil
		return fmt.Errorf("%s: %w", model.StagePersisted, err)
	}
	p.metrics.ObserveStage(model.StagePersisted.String(), time.Since(start))

	for _, c := range batch.Claims {
		p.metrics.IncrementOutcome(batch.TenantID, string(c.Status), string(c.ErrorType))
	}
	for _, c := range batch.Rejected {
		p.metrics.IncrementOutcome(batch.TenantID, string(c.Status), string(c.ErrorType))
	}
	return nil
}

// ingest builds the claims and, under the tenant lock, resolves their ids
// and reserves them in the store so concurrent batches cannot take them.
func (p *Pipeline) ingest(ctx context.Context, batch *model.Batch, records []model.RawRecord) error {
	claims := make([]*model.Claim, len(records))
	for i, rec := range records {
		claims[i] = model.NewClaim(rec, batch.TenantID, batch.BatchID, i)
	}

	unlock := p.tenants.Lock(batch.TenantID)
	defer unlock()

	res, err := p.resolver.Resolve(ctx, batch.BatchID, batch.TenantID, claims)
	if err != nil {
		batch.Claims = claims
		return err
	}
	batch.Claims = res.Claims
	batch.Rejected = res.Rejected

	if err := batch.Advance(model.StageIngested); err != nil {
		return err
	}
	if err := p.store.BeginBatch(ctx, batch); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) ruleSet(ctx context.Context, tenantID string) (model.RuleSet, error) {
	technical, err := p.rules.Technical(ctx, tenantID)
	if err != nil {
		return model.RuleSet{}, err
	}
	medical, err := p.rules.Medical(ctx, tenantID)
	if err != nil {
		return model.RuleSet{}, err
	}
	return model.RuleSet{Technical: technical, Medical: medical}, nil
}

// technicalEngine compiles the tenant's technical rules. An unusable unique
// id pattern falls back to the default one.
func (p *Pipeline) technicalEngine(r *model.TechnicalRules, log zerolog.Logger) (*validate.TechnicalEngine, error) {
	engine, err := validate.NewTechnicalEngine(r)
	if err == nil || !errors.Is(err, model.ErrConfiguration) {
		return engine, err
	}

	log.Warn().Err(err).Msg("invalid technical rules, using default unique id pattern")
	fallback := *r
	fallback.UniqueIDPattern = model.DefaultUniqueIDPattern
	return validate.NewTechnicalEngine(&fallback)
}
