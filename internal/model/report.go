package model

import (
	"fmt"
	"math"
	"time"
)

// Stage is a step of the batch state machine
type Stage int

const (
	StageNone Stage = iota
	StageIngested
	StageDataQualityChecked
	StageStaticallyValidated
	StageAdvisoryEvaluated
	StageReconciled
	StagePersisted
)

func (s Stage) String() string {
	switch s {
	case StageIngested:
		return "ingested"
	case StageDataQualityChecked:
		return "data_quality_checked"
	case StageStaticallyValidated:
		return "statically_validated"
	case StageAdvisoryEvaluated:
		return "advisory_evaluated"
	case StageReconciled:
		return "reconciled"
	case StagePersisted:
		return "persisted"
	default:
		return "none"
	}
}

// Batch is one processing run over an uploaded file
type Batch struct {
	BatchID     string       `json:"batch_id"`
	TenantID    string       `json:"tenant_id"`
	SourceFile  string       `json:"source_file,omitempty"`
	Stage       Stage        `json:"-"`
	StageName   string       `json:"stage"`
	Claims      []*Claim     `json:"claims"`
	Rejected    []*Claim     `json:"rejected,omitempty"` // identity collisions, never persisted
	Metrics     BatchMetrics `json:"metrics"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Advance moves the batch to the next stage. Stages only move forward;
// skipping the optional advisory stage is allowed, re-entering one is not.
func (b *Batch) Advance(to Stage) error {
	if to <= b.Stage {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, b.Stage, to)
	}
	if to != b.Stage+1 && !(b.Stage == StageStaticallyValidated && to == StageReconciled) {
		return fmt.Errorf("%w: %s -> %s", ErrStageOrder, b.Stage, to)
	}
	b.Stage = to
	b.StageName = to.String()
	return nil
}

// BatchMetrics holds commutative per-batch aggregates
type BatchMetrics struct {
	TotalClaims        int     `json:"total_claims"`
	ValidatedClaims    int     `json:"validated_claims"`
	NotValidatedClaims int     `json:"not_validated_claims"`
	NoErrorCount       int     `json:"no_error_count"`
	TechnicalCount     int     `json:"technical_error_count"`
	MedicalCount       int     `json:"medical_error_count"`
	BothCount          int     `json:"both_errors_count"`
	DataQualityCount   int     `json:"data_quality_error_count"`
	IdentityRejected   int     `json:"identity_rejected_count"`
	AdvisoryEvaluated  int     `json:"advisory_evaluated_count"`
	AdvisoryFailed     int     `json:"advisory_failed_count"`
	TotalPaidAmount    float64 `json:"total_paid_amount"`
	ValidatedAmount    float64 `json:"validated_amount"`
	RejectedAmount     float64 `json:"rejected_amount"`
	ProcessingTimeMS   int64   `json:"processing_time_ms"`
}

// Add accumulates a claim's final verdict into the metrics. Claims with data
// quality findings count as data quality errors only, and amounts that are
// missing or negative stay out of the sums.
func (m *BatchMetrics) Add(c *Claim) {
	m.TotalClaims++
	amount := 0.0
	if c.PaidAmount != nil && *c.PaidAmount >= 0 && !math.IsInf(*c.PaidAmount, 0) {
		amount = *c.PaidAmount
	}
	m.TotalPaidAmount += amount

	switch c.Status {
	case StatusValidated:
		m.ValidatedClaims++
		m.ValidatedAmount += amount
	case StatusNotValidated:
		m.NotValidatedClaims++
		m.RejectedAmount += amount
	}

	if len(c.DataQualityErrors) > 0 || c.ErrorType == ErrorTypeDataQuality {
		m.DataQualityCount++
		return
	}
	if c.ErrorType == ErrorTypeNone {
		m.NoErrorCount++
	}
	if c.ErrorType.HasTechnical() {
		m.TechnicalCount++
	}
	if c.ErrorType.HasMedical() {
		m.MedicalCount++
	}
	if c.ErrorType == ErrorTypeBoth {
		m.BothCount++
	}
}
