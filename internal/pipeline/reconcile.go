package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	refAdvisory       = "Advisory Analysis"
	maxAdvisoryDetail = 500
)

// Reconcile merges an advisory opinion into a statically validated claim.
//
// Static technical errors are authoritative: an advisory PASS cannot clear
// them, an advisory FAIL on a clean claim adds findings. For medical rules an
// explicit advisory PASS or FAIL wins, and an unknown status keeps the static
// result. A nil opinion leaves the claim untouched.
func Reconcile(c *model.Claim, op *model.AdvisoryOpinion) {
	if op == nil {
		return
	}

	if len(c.TechnicalErrors) == 0 && op.TechnicalStatus == model.VerdictFail {
		c.TechnicalErrors = advisoryFindings(op.TechnicalRules, "Advisory Technical Validation", op)
	}
	technicalFailed := len(c.TechnicalErrors) > 0

	var medicalFailed bool
	switch op.MedicalStatus {
	case model.VerdictPass:
		medicalFailed = false
	case model.VerdictFail:
		medicalFailed = true
	default:
		medicalFailed = len(c.MedicalErrors) > 0
	}

	if !medicalFailed {
		c.MedicalErrors = nil
	} else if op.MedicalStatus == model.VerdictFail {
		c.MedicalErrors = mergeFindings(c.MedicalErrors, op)
	}

	c.Status, c.ErrorType = classify(technicalFailed, medicalFailed)
	narrative := op.EnhancedExplanation
	if narrative == "" {
		narrative = op.Explanation
	}

	if c.Status == model.StatusValidated {
		c.ErrorExplanation = positiveSummary(c, op, narrative)
		c.RecommendedAction = approveAction
	} else {
		c.ErrorExplanation = bullets(c.TechnicalErrors, c.MedicalErrors)
		if narrative != "" {
			c.ErrorExplanation += "\n\n--- Advisory Review ---\n" + narrative
		}
		c.RecommendedAction = recommend(c.TechnicalErrors, c.MedicalErrors)
	}
	if op.RecommendedAction != "" {
		c.RecommendedAction = op.RecommendedAction
	}

	c.Advisory = &model.AdvisoryResult{
		Evaluated:      true,
		Confidence:     op.ConfidenceScore,
		Explanation:    op.Explanation,
		RetrievedRules: op.RetrievedRules,
	}
}

// advisoryFindings turns the FAIL entries of a rule list into findings, or a
// single catch-all finding carrying the free text when none are listed.
func advisoryFindings(statuses []model.RuleStatus, fallbackRule string, op *model.AdvisoryOpinion) []model.Finding {
	var out []model.Finding
	for _, rs := range model.Failing(statuses) {
		detail := rs.Reason
		if detail == "" {
			detail = rs.Rule
		}
		out = append(out, model.Finding{
			RuleName:      rs.Rule,
			RuleReference: refAdvisory,
			Detail:        detail,
			Severity:      model.SeverityError,
		})
	}
	if len(out) > 0 {
		return out
	}

	text := op.Explanation
	if text == "" {
		text = op.EnhancedExplanation
	}
	text = strings.Trim(truncate(text, maxAdvisoryDetail), "* \n")
	if text == "" {
		text = "Advisory evaluation reported a failure without details"
	}
	return []model.Finding{{
		RuleName:      fallbackRule,
		RuleReference: refAdvisory,
		Detail:        text,
		Severity:      model.SeverityError,
	}}
}

// mergeFindings appends advisory medical failures not already reported
// statically. The catch-all finding is only used when nothing else explains
// the failure.
func mergeFindings(static []model.Finding, op *model.AdvisoryOpinion) []model.Finding {
	failing := model.Failing(op.MedicalRules)
	if len(failing) == 0 && len(static) > 0 {
		return static
	}

	seen := make(map[string]bool, len(static))
	for _, f := range static {
		seen[f.RuleName] = true
	}
	out := static
	for _, f := range advisoryFindings(op.MedicalRules, "Advisory Medical Validation", op) {
		if !seen[f.RuleName] {
			out = append(out, f)
		}
	}
	return out
}

func positiveSummary(c *model.Claim, op *model.AdvisoryOpinion, narrative string) string {
	rule := strings.Repeat("=", 50)
	var parts []string

	if len(c.TechnicalPassed) > 0 {
		parts = append(parts, "TECHNICAL RULES VALIDATED:", rule)
		for _, f := range c.TechnicalPassed {
			ref := f.RuleReference
			if ref == "" {
				ref = "N/A"
			}
			parts = append(parts, "✓ "+f.RuleName+" ("+ref+")", "  "+f.Detail)
		}
		parts = append(parts, "")
	} else if passing := model.Passing(op.TechnicalRules); len(passing) > 0 {
		parts = append(parts, "TECHNICAL RULES VALIDATED:", rule)
		for _, rs := range passing {
			parts = append(parts, "✓ "+rs.Rule+" - PASS", "  "+rs.Reason)
		}
		parts = append(parts, "")
	}

	parts = append(parts, "MEDICAL RULES VALIDATED:", rule)
	if passing := model.Passing(op.MedicalRules); len(passing) > 0 {
		for _, rs := range passing {
			parts = append(parts, "✓ "+rs.Rule+" - PASS", "  "+rs.Reason)
		}
		parts = append(parts, "")
	}
	parts = append(parts, narrative)

	return strings.TrimRight(strings.Join(parts, "\n"), "\n")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
