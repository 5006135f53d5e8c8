package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
)

// Limiter paces outbound calls per key
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// EvaluatorOptions configures an Evaluator
type EvaluatorOptions struct {
	Model             string
	MaxTokens         int
	TopK              int
	AssumeMedicalPass bool
}

// Evaluator produces advisory opinions for claims. Every failure it returns
// wraps model.ErrAdvisoryUnavailable.
type Evaluator struct {
	provider  Provider
	retriever *RuleRetriever
	limiter   Limiter
	opts      EvaluatorOptions
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewEvaluator creates an evaluator. limiter may be nil.
func NewEvaluator(provider Provider, opts EvaluatorOptions, limiter Limiter, logger zerolog.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		provider:  provider,
		retriever: NewRuleRetriever(opts.TopK),
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
}

// Name returns the underlying provider name
func (e *Evaluator) Name() string {
	return e.provider.Name()
}

// Evaluate asks the provider for an opinion on one statically validated claim
func (e *Evaluator) Evaluate(ctx context.Context, claim *model.Claim, rules model.RuleSet) (*model.AdvisoryOpinion, error) {
	start := time.Now()

	snippets := e.retriever.Retrieve(claim, rules)
	prompt := BuildPrompt(claim, snippets, PromptOptions{AssumeMedicalPass: e.opts.AssumeMedicalPass})

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, claim.TenantID); err != nil {
			e.metrics.ObserveAdvisory("failed", time.Since(start))
			return nil, fmt.Errorf("%w: rate limit: %w", model.ErrAdvisoryUnavailable, err)
		}
	}

	resp, err := e.provider.Complete(ctx, CompletionRequest{
		Prompt:    prompt,
		Model:     e.opts.Model,
		MaxTokens: e.opts.MaxTokens,
	})
	if err != nil {
		e.metrics.ObserveAdvisory("failed", time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", model.ErrAdvisoryUnavailable, e.provider.Name(), err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		e.metrics.ObserveAdvisory("failed", time.Since(start))
		return nil, fmt.Errorf("%w: %s: empty response", model.ErrAdvisoryUnavailable, e.provider.Name())
	}

	opinion := ParseResponse(resp.Text)
	opinion.RetrievedRules = SnippetStrings(snippets)

	e.metrics.ObserveAdvisory("ok", time.Since(start))
	e.logger.Debug().
		Str("claim_id", claim.ClaimID).
		Str("model", resp.Model).
		Int("tokens", resp.TokensUsed).
		Int("rules", len(snippets)).
		Str("technical", string(opinion.TechnicalStatus)).
		Str("medical", string(opinion.MedicalStatus)).
		Float64("confidence", opinion.ConfidenceScore).
		Dur("elapsed", time.Since(start)).
		Msg("advisory evaluated")

	return opinion, nil
}
