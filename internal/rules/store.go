package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/claimcheck/internal/cache"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/validate"
)

// OriginBuiltin marks a document served from the hard-coded defaults
const OriginBuiltin = "builtin"

// Document is an immutable parsed rule snapshot. Exactly one of Technical or
// Medical is set, matching Kind.
type Document struct {
	Tenant    string
	Kind      model.RuleKind
	Origin    string // tenant whose file was parsed, or OriginBuiltin
	Hash      string
	LoadedAt  time.Time
	Technical *model.TechnicalRules
	Medical   *model.MedicalRules
}

// Value returns the typed rule document
func (d *Document) Value() any {
	if d.Kind == model.RuleKindMedical {
		return d.Medical
	}
	return d.Technical
}

// MarshalIndent renders the document as JSON
func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d.Value(), "", "  ")
}

// Store serves per-tenant rule documents through a content-addressed cache.
// Every Get re-reads the backing bytes; a parse happens only when their hash
// differs from the cached entry's.
type Store struct {
	source        Source
	cache         cache.Cache
	locks         *cache.KeyedMutex
	defaultTenant string
	ttl           time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

// NewStore creates a rule store
func NewStore(source Source, c cache.Cache, defaultTenant string, ttl time.Duration, logger zerolog.Logger) *Store {
	if c == nil {
		c = cache.NewMemoryCache(ttl, 10*time.Minute)
	}
	if defaultTenant == "" {
		defaultTenant = "default"
	}
	return &Store{
		source:        source,
		cache:         c,
		locks:         cache.NewKeyedMutex(),
		defaultTenant: defaultTenant,
		ttl:           ttl,
		logger:        logger,
	}
}

// WithMetrics attaches a metrics sink
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// DefaultTenant returns the fallback tenant id
func (s *Store) DefaultTenant() string {
	return s.defaultTenant
}

type candidate struct {
	origin string
	data   []byte // nil when absent
}

// Get returns the effective document for tenant and kind, falling back to
// the default tenant and then to the hard-coded defaults.
func (s *Store) Get(ctx context.Context, tenant string, kind model.RuleKind) (*Document, error) {
	if tenant == "" {
		tenant = s.defaultTenant
	}
	if _, err := model.ParseRuleKind(string(kind)); err != nil {
		return nil, err
	}

	candidates, err := s.readCandidates(ctx, tenant, kind)
	if err != nil {
		return nil, err
	}
	hash := fingerprint(candidates)
	key := cache.Key(tenant, string(kind))

	if doc, ok := s.cached(key, hash); ok {
		s.metrics.IncrementRuleLookup("hit")
		return doc, nil
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	// A concurrent reader may have loaded the same bytes while we waited
	if doc, ok := s.cached(key, hash); ok {
		s.metrics.IncrementRuleLookup("hit")
		return doc, nil
	}

	doc := s.build(tenant, kind, hash, candidates)
	s.cache.Set(key, &cache.Entry{
		Hash:     hash,
		Origin:   doc.Origin,
		Value:    doc,
		LoadedAt: doc.LoadedAt,
	}, s.ttl)
	s.metrics.IncrementRuleLookup("reload")

	s.logger.Debug().
		Str("tenant", tenant).
		Str("kind", string(kind)).
		Str("origin", doc.Origin).
		Str("hash", shortHash(hash)).
		Msg("rule document loaded")

	return doc, nil
}

// Technical returns the effective technical rules for a tenant
func (s *Store) Technical(ctx context.Context, tenant string) (*model.TechnicalRules, error) {
	doc, err := s.Get(ctx, tenant, model.RuleKindTechnical)
	if err != nil {
		return nil, err
	}
	return doc.Technical, nil
}

// Medical returns the effective medical rules for a tenant
func (s *Store) Medical(ctx context.Context, tenant string) (*model.MedicalRules, error) {
	doc, err := s.Get(ctx, tenant, model.RuleKindMedical)
	if err != nil {
		return nil, err
	}
	return doc.Medical, nil
}

// Update validates raw as a rule document and replaces the tenant's file.
// The cache entry for exactly (tenant, kind) is evicted under the same lock
// readers take to reload it.
func (s *Store) Update(ctx context.Context, tenant string, kind model.RuleKind, raw []byte) error {
	if tenant == "" {
		tenant = s.defaultTenant
	}
	if _, err := model.ParseRuleKind(string(kind)); err != nil {
		return err
	}

	technical, medical, err := Parse(kind, raw)
	if err != nil {
		return err
	}

	var value any = technical
	if kind == model.RuleKindMedical {
		value = medical
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}

	key := cache.Key(tenant, string(kind))
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := s.source.Write(ctx, tenant, kind, data); err != nil {
		return fmt.Errorf("update %s rules for %s: %w", kind, tenant, err)
	}
	s.cache.Delete(key)

	s.logger.Info().
		Str("tenant", tenant).
		Str("kind", string(kind)).
		Msg("rule document updated")

	return nil
}

// Invalidate drops cached documents. An empty tenant clears everything, an
// empty kind clears every kind of the tenant.
func (s *Store) Invalidate(tenant string, kind model.RuleKind) {
	switch {
	case tenant == "":
		s.cache.Clear()
	case kind == "":
		s.cache.DeletePrefix(cache.Prefix(tenant))
	default:
		s.cache.Delete(cache.Key(tenant, string(kind)))
	}
	s.logger.Debug().Str("tenant", tenant).Str("kind", string(kind)).Msg("rule cache invalidated")
}

// Reload invalidates and re-reads one document
func (s *Store) Reload(ctx context.Context, tenant string, kind model.RuleKind) (*Document, error) {
	if tenant == "" {
		tenant = s.defaultTenant
	}
	s.Invalidate(tenant, kind)
	return s.Get(ctx, tenant, kind)
}

func (s *Store) cached(key, hash string) (*Document, bool) {
	entry, ok := s.cache.Get(key)
	if !ok || entry.Hash != hash {
		return nil, false
	}
	doc, ok := entry.Value.(*Document)
	return doc, ok
}

// readCandidates reads the tenant file and, when different, the default
// tenant's file. Missing files are recorded as absent.
func (s *Store) readCandidates(ctx context.Context, tenant string, kind model.RuleKind) ([]candidate, error) {
	origins := []string{tenant}
	if tenant != s.defaultTenant {
		origins = append(origins, s.defaultTenant)
	}

	candidates := make([]candidate, 0, len(origins))
	for _, origin := range origins {
		data, err := s.source.Read(ctx, origin, kind)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				candidates = append(candidates, candidate{origin: origin})
				continue
			}
			return nil, fmt.Errorf("load %s rules for %s: %w", kind, origin, err)
		}
		candidates = append(candidates, candidate{origin: origin, data: data})
	}
	return candidates, nil
}

// build parses the first usable candidate. Corrupt documents are skipped
// with a warning.
func (s *Store) build(tenant string, kind model.RuleKind, hash string, candidates []candidate) *Document {
	doc := &Document{
		Tenant:   tenant,
		Kind:     kind,
		Hash:     hash,
		LoadedAt: time.Now(),
	}

	for _, c := range candidates {
		if c.data == nil {
			continue
		}
		technical, medical, err := Parse(kind, c.data)
		if err != nil {
			s.metrics.IncrementRuleLookup("fallback")
			s.logger.Warn().
				Err(err).
				Str("tenant", tenant).
				Str("origin", c.origin).
				Str("kind", string(kind)).
				Msg("corrupt rule document, falling back")
			continue
		}
		doc.Origin = c.origin
		doc.Technical = technical
		doc.Medical = medical
		return doc
	}

	doc.Origin = OriginBuiltin
	if kind == model.RuleKindMedical {
		doc.Medical = model.DefaultMedicalRules()
	} else {
		doc.Technical = model.DefaultTechnicalRules()
	}
	return doc
}

// Parse decodes and validates a rule document. Fields missing from data keep
// their default values.
func Parse(kind model.RuleKind, data []byte) (*model.TechnicalRules, *model.MedicalRules, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, fmt.Errorf("%w: empty %s rules document", model.ErrConfiguration, kind)
	}

	switch kind {
	case model.RuleKindTechnical:
		rules := model.DefaultTechnicalRules()
		if err := json.Unmarshal(data, rules); err != nil {
			return nil, nil, fmt.Errorf("%w: parse technical rules: %v", model.ErrConfiguration, err)
		}
		if rules.UniqueIDPattern == "" {
			rules.UniqueIDPattern = model.DefaultUniqueIDPattern
		}
		if rules.PaidAmountThreshold < 0 {
			return nil, nil, fmt.Errorf("%w: paid_amount_threshold must not be negative", model.ErrConfiguration)
		}
		if _, err := validate.CompileUniqueIDPattern(rules.UniqueIDPattern); err != nil {
			return nil, nil, err
		}
		return rules, nil, nil

	case model.RuleKindMedical:
		rules := model.DefaultMedicalRules()
		if err := json.Unmarshal(data, rules); err != nil {
			return nil, nil, fmt.Errorf("%w: parse medical rules: %v", model.ErrConfiguration, err)
		}
		normalizeMedical(rules)
		return nil, rules, nil

	default:
		_, err := model.ParseRuleKind(string(kind))
		return nil, nil, err
	}
}

// normalizeMedical replaces JSON nulls with empty collections
func normalizeMedical(r *model.MedicalRules) {
	if r.InpatientServices == nil {
		r.InpatientServices = []string{}
	}
	if r.OutpatientServices == nil {
		r.OutpatientServices = []string{}
	}
	if r.FacilityTypes == nil {
		r.FacilityTypes = map[string][]string{}
	}
	if r.FacilityRegistry == nil {
		r.FacilityRegistry = map[string]string{}
	}
	if r.ServiceDiagnosisRequirements == nil {
		r.ServiceDiagnosisRequirements = map[string][]string{}
	}
	if r.MutuallyExclusiveDiagnoses == nil {
		r.MutuallyExclusiveDiagnoses = []model.ExclusionGroup{}
	}
}

// fingerprint hashes the full fallback chain so a change to any file in it
// forces a reload.
func fingerprint(candidates []candidate) string {
	var buf bytes.Buffer
	for _, c := range candidates {
		buf.WriteString(c.origin)
		if c.data == nil {
			buf.WriteString("\x00absent\x00")
			continue
		}
		fmt.Fprintf(&buf, "\x00%d\x00", len(c.data))
		buf.Write(c.data)
	}
	return cache.ContentHash(buf.Bytes())
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
