package validate

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	refMedicalEncounter = "Medical Rules Section A"
	refMedicalFacility  = "Medical Rules Section B"
	refMedicalDiagnosis = "Medical Rules Section C"
	refMedicalExclusive = "Medical Rules Section D"
)

// MedicalEngine applies clinical coding rules to claims
type MedicalEngine struct {
	rules *model.MedicalRules
}

// NewMedicalEngine creates an engine over a medical rule document snapshot
func NewMedicalEngine(rules *model.MedicalRules) *MedicalEngine {
	if rules == nil {
		rules = model.DefaultMedicalRules()
	}
	return &MedicalEngine{rules: rules}
}

// Validate runs all medical checks; none short-circuits another
func (e *MedicalEngine) Validate(claim *model.Claim) []model.Finding {
	var errs []model.Finding
	errs = append(errs, e.checkEncounterType(claim)...)
	errs = append(errs, e.checkFacilityEligibility(claim)...)
	errs = append(errs, e.checkServiceDiagnosis(claim)...)
	errs = append(errs, e.checkMutuallyExclusive(claim)...)
	return errs
}

func (e *MedicalEngine) checkEncounterType(claim *model.Claim) []model.Finding {
	if claim.ServiceCode == "" {
		return nil
	}

	var allowed []string
	switch claim.EncounterType {
	case model.EncounterInpatient:
		allowed = e.rules.InpatientServices
	case model.EncounterOutpatient:
		allowed = e.rules.OutpatientServices
	default:
		return nil
	}

	if contains(allowed, claim.ServiceCode) {
		return nil
	}
	return []model.Finding{{
		RuleName:      "Service-Encounter Type Restriction",
		RuleReference: refMedicalEncounter,
		Detail: fmt.Sprintf("Service code %s is not allowed for %s encounters. Allowed services: %s",
			claim.ServiceCode, claim.EncounterType, formatList(allowed)),
		Severity: model.SeverityError,
	}}
}

// checkFacilityEligibility permits facilities missing from the registry
func (e *MedicalEngine) checkFacilityEligibility(claim *model.Claim) []model.Finding {
	if claim.FacilityID == "" || claim.ServiceCode == "" {
		return nil
	}

	facilityType, registered := e.rules.FacilityRegistry[claim.FacilityID]
	if !registered || facilityType == "" {
		return nil
	}

	allowed := e.rules.FacilityTypes[facilityType]
	if contains(allowed, claim.ServiceCode) {
		return nil
	}
	return []model.Finding{{
		RuleName:      "Facility-Service Eligibility",
		RuleReference: refMedicalFacility,
		Detail: fmt.Sprintf("Facility %s (type: %s) is not eligible for service code %s. Allowed services: %s",
			claim.FacilityID, facilityType, claim.ServiceCode, formatList(allowed)),
		Severity: model.SeverityError,
	}}
}

func (e *MedicalEngine) checkServiceDiagnosis(claim *model.Claim) []model.Finding {
	if claim.ServiceCode == "" || len(claim.DiagnosisCodes) == 0 {
		return nil
	}

	required, ok := e.rules.ServiceDiagnosisRequirements[claim.ServiceCode]
	if !ok {
		return nil
	}
	for _, dx := range claim.DiagnosisCodes {
		if contains(required, dx) {
			return nil
		}
	}
	return []model.Finding{{
		RuleName:      "Service-Diagnosis Requirement",
		RuleReference: refMedicalDiagnosis,
		Detail: fmt.Sprintf("Service code %s requires one of the following diagnosis codes: %s, but found: %s",
			claim.ServiceCode, formatList(required), formatList(claim.DiagnosisCodes)),
		Severity: model.SeverityError,
	}}
}

func (e *MedicalEngine) checkMutuallyExclusive(claim *model.Claim) []model.Finding {
	if len(claim.DiagnosisCodes) == 0 {
		return nil
	}

	present := toSet(claim.DiagnosisCodes)
	var errs []model.Finding
	for _, group := range e.rules.MutuallyExclusiveDiagnoses {
		if len(group.Diagnoses) == 0 {
			continue
		}
		all := true
		for _, dx := range group.Diagnoses {
			if _, ok := present[dx]; !ok {
				all = false
				break
			}
		}
		if !all {
			continue
		}

		reason := group.Reason
		if reason == "" {
			reason = "Cannot coexist"
		}
		errs = append(errs, model.Finding{
			RuleName:      "Mutually Exclusive Diagnoses",
			RuleReference: refMedicalExclusive,
			Detail:        fmt.Sprintf("The following diagnosis codes cannot coexist: %s. Reason: %s", formatList(group.Diagnoses), reason),
			Severity:      model.SeverityError,
		})
	}
	return errs
}

func contains(values []string, item string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == item {
			return true
		}
	}
	return false
}

func formatList(values []string) string {
	return "[" + strings.Join(values, ", ") + "]"
}
