package model

import "fmt"

// RuleKind selects a rule document family
type RuleKind string

const (
	RuleKindTechnical RuleKind = "technical"
	RuleKindMedical   RuleKind = "medical"
)

// ParseRuleKind validates a rule kind string
func ParseRuleKind(s string) (RuleKind, error) {
	switch RuleKind(s) {
	case RuleKindTechnical, RuleKindMedical:
		return RuleKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown rule kind %q (supported: technical, medical)", ErrConfiguration, s)
	}
}

// DefaultUniqueIDPattern is used when a document omits or breaks the pattern
const DefaultUniqueIDPattern = `^[A-Z0-9-]{10,}$`

// DefaultPaidAmountThreshold in AED
const DefaultPaidAmountThreshold = 5000.0

// TechnicalRules is the technical rule document for one tenant
type TechnicalRules struct {
	ServicesRequiringApproval  []string           `json:"services_requiring_approval" yaml:"services_requiring_approval"`
	DiagnosesRequiringApproval []string           `json:"diagnoses_requiring_approval" yaml:"diagnoses_requiring_approval"`
	PaidAmountThreshold        float64            `json:"paid_amount_threshold" yaml:"paid_amount_threshold"`
	UniqueIDPattern            string             `json:"unique_id_pattern" yaml:"unique_id_pattern"`
	UniqueIDValidation         UniqueIDValidation `json:"unique_id_validation" yaml:"unique_id_validation"`
}

// UniqueIDValidation toggles the segment consistency check
type UniqueIDValidation struct {
	VerifySegments bool `json:"verify_segments" yaml:"verify_segments"`
}

// ExclusionGroup is a set of diagnoses that cannot appear together
type ExclusionGroup struct {
	Diagnoses []string `json:"diagnoses" yaml:"diagnoses"`
	Reason    string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// MedicalRules is the medical rule document for one tenant
type MedicalRules struct {
	InpatientServices            []string            `json:"inpatient_services" yaml:"inpatient_services"`
	OutpatientServices           []string            `json:"outpatient_services" yaml:"outpatient_services"`
	FacilityTypes                map[string][]string `json:"facility_types" yaml:"facility_types"`
	FacilityRegistry             map[string]string   `json:"facility_registry" yaml:"facility_registry"`
	ServiceDiagnosisRequirements map[string][]string `json:"service_diagnosis_requirements" yaml:"service_diagnosis_requirements"`
	MutuallyExclusiveDiagnoses   []ExclusionGroup    `json:"mutually_exclusive_diagnoses" yaml:"mutually_exclusive_diagnoses"`
}

// DefaultTechnicalRules returns the hard-coded minimal technical document
func DefaultTechnicalRules() *TechnicalRules {
	return &TechnicalRules{
		ServicesRequiringApproval:  []string{},
		DiagnosesRequiringApproval: []string{},
		PaidAmountThreshold:        DefaultPaidAmountThreshold,
		UniqueIDPattern:            DefaultUniqueIDPattern,
		UniqueIDValidation:         UniqueIDValidation{VerifySegments: true},
	}
}

// DefaultMedicalRules returns the hard-coded minimal medical document
func DefaultMedicalRules() *MedicalRules {
	return &MedicalRules{
		InpatientServices:            []string{},
		OutpatientServices:           []string{},
		FacilityTypes:                map[string][]string{},
		FacilityRegistry:             map[string]string{},
		ServiceDiagnosisRequirements: map[string][]string{},
		MutuallyExclusiveDiagnoses:   []ExclusionGroup{},
	}
}

// RuleSet is one tenant's effective technical and medical documents
type RuleSet struct {
	Technical *TechnicalRules
	Medical   *MedicalRules
}
