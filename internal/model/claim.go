package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the terminal (or in-flight) verdict of a claim
type Status string

const (
	StatusProcessing   Status = "Processing"
	StatusValidated    Status = "Validated"
	StatusNotValidated Status = "Not validated"
)

// ErrorType classifies why a claim was not validated
type ErrorType string

const (
	ErrorTypeNone        ErrorType = "No error"
	ErrorTypeTechnical   ErrorType = "Technical error"
	ErrorTypeMedical     ErrorType = "Medical error"
	ErrorTypeBoth        ErrorType = "Both"
	ErrorTypeDataQuality ErrorType = "Data quality error"
	ErrorTypeUnknown     ErrorType = "Unknown"
)

// HasTechnical reports whether the error type includes a technical component
func (e ErrorType) HasTechnical() bool {
	return e == ErrorTypeTechnical || e == ErrorTypeBoth
}

// HasMedical reports whether the error type includes a medical component
func (e ErrorType) HasMedical() bool {
	return e == ErrorTypeMedical || e == ErrorTypeBoth
}

// EncounterType is the care setting of the claim
type EncounterType string

const (
	EncounterInpatient  EncounterType = "INPATIENT"
	EncounterOutpatient EncounterType = "OUTPATIENT"
)

// Valid reports whether the encounter type is one of the known literals
func (e EncounterType) Valid() bool {
	return e == EncounterInpatient || e == EncounterOutpatient
}

// Severity of a rule finding
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info" // passed-rule notes
)

// Finding is a single rule outcome attached to a claim
type Finding struct {
	RuleName      string   `json:"rule_name"`
	RuleReference string   `json:"rule_reference,omitempty"`
	Detail        string   `json:"detail"`
	Severity      Severity `json:"severity,omitempty"`
}

// Claim is one submitted billing record plus its derived validation state
type Claim struct {
	ClaimID  string `json:"claim_id"`
	TenantID string `json:"tenant_id"`
	BatchID  string `json:"batch_id"`
	RowIndex int    `json:"row_index"`

	EncounterType  EncounterType `json:"encounter_type,omitempty"`
	ServiceDate    *time.Time    `json:"service_date,omitempty"`
	ServiceCode    string        `json:"service_code,omitempty"`
	DiagnosisCodes []string      `json:"diagnosis_codes,omitempty"`
	FacilityID     string        `json:"facility_id,omitempty"`
	ApprovalNumber string        `json:"approval_number,omitempty"`
	PaidAmount     *float64      `json:"paid_amount_aed,omitempty"`
	NationalID     string        `json:"national_id,omitempty"`
	MemberID       string        `json:"member_id,omitempty"`
	UniqueID       string        `json:"unique_id,omitempty"`

	DataQualityErrors []Finding `json:"data_quality_errors,omitempty"`
	TechnicalErrors   []Finding `json:"technical_errors,omitempty"`
	TechnicalPassed   []Finding `json:"technical_passed_rules,omitempty"`
	MedicalErrors     []Finding `json:"medical_errors,omitempty"`

	Status            Status    `json:"status"`
	ErrorType         ErrorType `json:"error_type,omitempty"`
	ErrorExplanation  string    `json:"error_explanation,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`

	Advisory *AdvisoryResult `json:"advisory,omitempty"`
}

// NewClaim builds a claim in Processing state from an ingested record
func NewClaim(rec RawRecord, tenantID, batchID string, rowIndex int) *Claim {
	c := &Claim{
		ClaimID:        rec.ClaimID,
		TenantID:       tenantID,
		BatchID:        batchID,
		RowIndex:       rowIndex,
		EncounterType:  EncounterType(strings.ToUpper(strings.TrimSpace(rec.EncounterType))),
		ServiceDate:    rec.ServiceDate,
		ServiceCode:    strings.TrimSpace(rec.ServiceCode),
		FacilityID:     strings.TrimSpace(rec.FacilityID),
		ApprovalNumber: strings.TrimSpace(rec.ApprovalNumber),
		PaidAmount:     finiteAmount(rec.PaidAmount),
		NationalID:     strings.TrimSpace(rec.NationalID),
		MemberID:       strings.TrimSpace(rec.MemberID),
		UniqueID:       strings.TrimSpace(rec.UniqueID),
		Status:         StatusProcessing,
	}
	for _, dx := range rec.DiagnosisCodes {
		if dx = strings.TrimSpace(dx); dx != "" {
			c.DiagnosisCodes = append(c.DiagnosisCodes, dx)
		}
	}
	return c
}

// finiteAmount drops NaN and infinite amounts, which no store can encode
func finiteAmount(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// HasApproval reports whether a non-blank approval number was supplied
func (c *Claim) HasApproval() bool {
	return strings.TrimSpace(c.ApprovalNumber) != ""
}

// Amount returns the paid amount or zero when absent
func (c *Claim) Amount() float64 {
	if c.PaidAmount == nil {
		return 0
	}
	return *c.PaidAmount
}

// Err summarises a rejected claim as an error wrapping ErrDataQuality,
// ErrTechnical or ErrMedical, one per finding. It is nil unless the claim is
// Not validated.
func (c *Claim) Err() error {
	if c.Status != StatusNotValidated {
		return nil
	}

	var errs []error
	for _, f := range c.DataQualityErrors {
		errs = append(errs, fmt.Errorf("%w: %s", ErrDataQuality, f.Detail))
	}
	for _, f := range c.TechnicalErrors {
		errs = append(errs, fmt.Errorf("%w: %s", ErrTechnical, f.Detail))
	}
	for _, f := range c.MedicalErrors {
		errs = append(errs, fmt.Errorf("%w: %s", ErrMedical, f.Detail))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	switch {
	case c.ErrorType.HasTechnical() && c.ErrorType.HasMedical():
		return errors.Join(ErrTechnical, ErrMedical)
	case c.ErrorType.HasMedical():
		return ErrMedical
	case c.ErrorType.HasTechnical():
		return ErrTechnical
	default:
		return ErrDataQuality
	}
}

// IsTerminal reports whether the claim has left the Processing state
func (c *Claim) IsTerminal() bool {
	return c.Status == StatusValidated || c.Status == StatusNotValidated
}

// RawRecord is one ingested row with the known columns already type-coerced
type RawRecord struct {
	ClaimID        string            `json:"claim_id,omitempty"`
	EncounterType  string            `json:"encounter_type,omitempty"`
	ServiceDate    *time.Time        `json:"service_date,omitempty"`
	NationalID     string            `json:"national_id,omitempty"`
	MemberID       string            `json:"member_id,omitempty"`
	FacilityID     string            `json:"facility_id,omitempty"`
	UniqueID       string            `json:"unique_id,omitempty"`
	DiagnosisCodes []string          `json:"diagnosis_codes,omitempty"`
	ServiceCode    string            `json:"service_code,omitempty"`
	PaidAmount     *float64          `json:"paid_amount_aed,omitempty"`
	ApprovalNumber string            `json:"approval_number,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"` // unmapped columns, never read by rule engines
}
