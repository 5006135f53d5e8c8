package validate

import (
	"fmt"
	"math"

	"github.com/ppiankov/claimcheck/internal/model"
)

const refDataQuality = "Data Quality"

// DataQualityChecker flags structural problems that make rule evaluation meaningless
type DataQualityChecker struct {
	expected []string
}

// NewDataQualityChecker creates a checker for the given expected fields.
// A nil list uses model.DefaultExpectedFields.
func NewDataQualityChecker(expectedFields []string) *DataQualityChecker {
	if expectedFields == nil {
		expectedFields = model.DefaultExpectedFields()
	}
	return &DataQualityChecker{expected: expectedFields}
}

// Check returns the data quality findings for a claim
func (d *DataQualityChecker) Check(claim *model.Claim) []model.Finding {
	var errs []model.Finding

	for _, field := range d.expected {
		present, known := fieldPresent(claim, field)
		if !known || present {
			continue
		}
		errs = append(errs, model.Finding{
			RuleName:      "Missing Expected Field",
			RuleReference: refDataQuality,
			Detail:        fmt.Sprintf("Expected field '%s' is missing or empty", field),
			Severity:      model.SeverityWarning,
		})
	}

	switch {
	case claim.PaidAmount == nil:
	case math.IsNaN(*claim.PaidAmount) || math.IsInf(*claim.PaidAmount, 0):
		errs = append(errs, model.Finding{
			RuleName:      "Invalid Paid Amount",
			RuleReference: refDataQuality,
			Detail:        "Paid amount must be a finite number",
			Severity:      model.SeverityWarning,
		})
	case *claim.PaidAmount < 0:
		errs = append(errs, model.Finding{
			RuleName:      "Negative Paid Amount",
			RuleReference: refDataQuality,
			Detail:        "Paid amount cannot be negative",
			Severity:      model.SeverityWarning,
		})
	}

	if claim.EncounterType != "" && !claim.EncounterType.Valid() {
		errs = append(errs, model.Finding{
			RuleName:      "Invalid Encounter Type",
			RuleReference: refDataQuality,
			Detail:        fmt.Sprintf("Invalid encounter type: %s. Must be INPATIENT or OUTPATIENT", claim.EncounterType),
			Severity:      model.SeverityWarning,
		})
	}

	return errs
}

// fieldPresent reports whether a named column carries a value; known is false
// for names that do not map to a claim field.
func fieldPresent(c *model.Claim, field string) (present bool, known bool) {
	switch field {
	case "claim_id":
		return c.ClaimID != "", true
	case "encounter_type":
		return c.EncounterType != "", true
	case "service_date":
		return c.ServiceDate != nil, true
	case "national_id":
		return c.NationalID != "", true
	case "member_id":
		return c.MemberID != "", true
	case "facility_id":
		return c.FacilityID != "", true
	case "unique_id":
		return c.UniqueID != "", true
	case "diagnosis_codes":
		return len(c.DiagnosisCodes) > 0, true
	case "service_code":
		return c.ServiceCode != "", true
	case "paid_amount_aed", "paid_amount":
		return c.PaidAmount != nil, true
	case "approval_number":
		return c.ApprovalNumber != "", true
	default:
		return false, false
	}
}

// IsKnownField reports whether a field name can be used in the expected list
func IsKnownField(field string) bool {
	_, known := fieldPresent(&model.Claim{}, field)
	return known
}
