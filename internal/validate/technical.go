package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	refTechnicalApproval  = "Technical Rules Section 1"
	refTechnicalDiagnosis = "Technical Rules Section 2"
	refTechnicalAmount    = "Technical Rules Section 3"
	refTechnicalUniqueID  = "Technical Rules Section 4"
)

// TechnicalEngine applies technical adjudication rules to claims.
// It holds an immutable snapshot of one tenant's technical document.
type TechnicalEngine struct {
	rules             *model.TechnicalRules
	pattern           *regexp.Regexp
	approvalServices  map[string]struct{}
	approvalDiagnoses map[string]struct{}
}

// NewTechnicalEngine compiles a technical rule document into an engine
func NewTechnicalEngine(rules *model.TechnicalRules) (*TechnicalEngine, error) {
	if rules == nil {
		rules = model.DefaultTechnicalRules()
	}

	patternText := rules.UniqueIDPattern
	if patternText == "" {
		patternText = model.DefaultUniqueIDPattern
	}
	pattern, err := CompileUniqueIDPattern(patternText)
	if err != nil {
		return nil, err
	}

	return &TechnicalEngine{
		rules:             rules,
		pattern:           pattern,
		approvalServices:  toSet(rules.ServicesRequiringApproval),
		approvalDiagnoses: toSet(rules.DiagnosesRequiringApproval),
	}, nil
}

// CompileUniqueIDPattern compiles a unique ID pattern anchored at the start,
// matching how the pattern is applied to identifiers.
func CompileUniqueIDPattern(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^(?:" + pattern + ")"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid unique_id_pattern: %v", model.ErrConfiguration, err)
	}
	return re, nil
}

// Validate runs every technical check and returns the violations together
// with a passed-rule note for each check that did not fail.
func (e *TechnicalEngine) Validate(claim *model.Claim) (errs []model.Finding, passed []model.Finding) {
	if f, ok := e.checkServiceApproval(claim); ok {
		errs = append(errs, f...)
	} else {
		passed = append(passed, f...)
	}

	if f, ok := e.checkDiagnosisApproval(claim); ok {
		errs = append(errs, f...)
	} else {
		passed = append(passed, f...)
	}

	if f, ok := e.checkPaidAmount(claim); ok {
		errs = append(errs, f...)
	} else {
		passed = append(passed, f...)
	}

	if f, ok := e.checkUniqueID(claim); ok {
		errs = append(errs, f...)
	} else {
		passed = append(passed, f...)
	}

	return errs, passed
}

// Each check returns its findings and whether they are violations.

func (e *TechnicalEngine) checkServiceApproval(claim *model.Claim) ([]model.Finding, bool) {
	code := claim.ServiceCode
	if code == "" {
		return nil, false
	}

	if _, required := e.approvalServices[code]; !required {
		return []model.Finding{{
			RuleName:      "Service Approval Requirement",
			RuleReference: refTechnicalApproval,
			Detail:        fmt.Sprintf("Service code %s does not require prior approval.", code),
			Severity:      model.SeverityInfo,
		}}, false
	}

	if !claim.HasApproval() {
		return []model.Finding{{
			RuleName:      "Service Requires Prior Approval",
			RuleReference: refTechnicalApproval,
			Detail:        fmt.Sprintf("Service code %s requires prior approval but no approval number provided", code),
			Severity:      model.SeverityCritical,
		}}, true
	}

	return []model.Finding{{
		RuleName:      "Service Approval Requirement",
		RuleReference: refTechnicalApproval,
		Detail:        fmt.Sprintf("Service code %s requires approval and approval number %s is provided.", code, claim.ApprovalNumber),
		Severity:      model.SeverityInfo,
	}}, false
}

func (e *TechnicalEngine) checkDiagnosisApproval(claim *model.Claim) ([]model.Finding, bool) {
	if len(claim.DiagnosisCodes) == 0 {
		return nil, false
	}

	requiresApproval := false
	for _, dx := range claim.DiagnosisCodes {
		if _, ok := e.approvalDiagnoses[dx]; !ok {
			continue
		}
		requiresApproval = true
		if !claim.HasApproval() {
			// first match only
			return []model.Finding{{
				RuleName:      "Diagnosis Requires Prior Approval",
				RuleReference: refTechnicalDiagnosis,
				Detail:        fmt.Sprintf("Diagnosis code %s requires prior approval but no approval number provided", dx),
				Severity:      model.SeverityCritical,
			}}, true
		}
		break
	}

	codes := strings.Join(claim.DiagnosisCodes, ", ")
	detail := fmt.Sprintf("Diagnosis code(s) %s do not require prior approval.", codes)
	if requiresApproval {
		detail = fmt.Sprintf("Diagnosis code(s) %s require approval and approval number %s is provided.", codes, claim.ApprovalNumber)
	}
	return []model.Finding{{
		RuleName:      "Diagnosis Approval Requirement",
		RuleReference: refTechnicalDiagnosis,
		Detail:        detail,
		Severity:      model.SeverityInfo,
	}}, false
}

func (e *TechnicalEngine) checkPaidAmount(claim *model.Claim) ([]model.Finding, bool) {
	if claim.PaidAmount == nil || *claim.PaidAmount == 0 {
		return nil, false
	}

	amount := *claim.PaidAmount
	threshold := e.rules.PaidAmountThreshold
	if amount > threshold {
		return []model.Finding{{
			RuleName:      "Paid Amount Threshold",
			RuleReference: refTechnicalAmount,
			Detail:        fmt.Sprintf("Paid amount %s exceeds threshold %s. Requires additional approval.", formatAmount(amount), formatAmount(threshold)),
			Severity:      model.SeverityWarning,
		}}, true
	}

	return []model.Finding{{
		RuleName:      "Paid Amount Threshold",
		RuleReference: refTechnicalAmount,
		Detail:        fmt.Sprintf("Paid amount %s AED is within threshold of %s AED.", formatAmount(amount), formatAmount(threshold)),
		Severity:      model.SeverityInfo,
	}}, false
}

func (e *TechnicalEngine) checkUniqueID(claim *model.Claim) ([]model.Finding, bool) {
	uid := strings.TrimSpace(claim.UniqueID)
	if uid == "" {
		return nil, false
	}

	if !e.pattern.MatchString(uid) {
		// A malformed identifier short-circuits the segment checks
		return []model.Finding{{
			RuleName:      "Unique ID Format",
			RuleReference: refTechnicalUniqueID,
			Detail:        fmt.Sprintf("Unique ID format is invalid: %s. Expected pattern: %s", uid, e.pattern.String()),
			Severity:      model.SeverityError,
		}}, true
	}

	var errs []model.Finding
	if e.rules.UniqueIDValidation.VerifySegments && claim.NationalID != "" && claim.MemberID != "" && claim.FacilityID != "" {
		errs = append(errs, checkSegments(uid, claim)...)

		if uid != strings.ToUpper(uid) {
			errs = append(errs, model.Finding{
				RuleName:      "Unique ID Casing",
				RuleReference: refTechnicalUniqueID,
				Detail:        fmt.Sprintf("All IDs must be UPPERCASE alphanumeric. Found: %s", uid),
				Severity:      model.SeverityError,
			})
		}
	}
	if len(errs) > 0 {
		return errs, true
	}

	return []model.Finding{{
		RuleName:      "Unique ID Format",
		RuleReference: refTechnicalUniqueID,
		Detail:        fmt.Sprintf("Unique ID %s format is valid.", uid),
		Severity:      model.SeverityInfo,
	}}, false
}

// checkSegments compares FIRST-MIDDLE-LAST against the first 4 characters of
// the national ID, the middle 4 of the member ID and the last 4 of the
// facility ID. Comparison is case-insensitive; casing is reported separately.
func checkSegments(uid string, claim *model.Claim) []model.Finding {
	parts := strings.Split(uid, "-")
	if len(parts) != 3 {
		return nil
	}

	segments := []struct {
		actual   string
		expected string
		position string
		source   string
	}{
		{parts[0], firstN(claim.NationalID, 4), "first", "first 4 characters of National ID"},
		{parts[1], middleN(claim.MemberID, 4), "middle", "middle 4 characters of Member ID"},
		{parts[2], lastN(claim.FacilityID, 4), "last", "last 4 characters of Facility ID"},
	}

	var errs []model.Finding
	for _, s := range segments {
		if strings.ToUpper(s.actual) == s.expected {
			continue
		}
		errs = append(errs, model.Finding{
			RuleName:      "Unique ID Segment Validation",
			RuleReference: refTechnicalUniqueID,
			Detail:        fmt.Sprintf("Unique ID %s segment '%s' does not match %s '%s'", s.position, s.actual, s.source, s.expected),
			Severity:      model.SeverityError,
		})
	}
	return errs
}

func normalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func firstN(s string, n int) string {
	s = normalizeID(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func middleN(s string, n int) string {
	s = normalizeID(s)
	if len(s) <= n {
		return s
	}
	start := (len(s) - n) / 2
	return s[start : start+n]
}

func lastN(s string, n int) string {
	s = normalizeID(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}
