package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

const (
	maxPromptRules    = 50
	maxRuleSnippetLen = 1000
)

// PromptOptions tunes BuildPrompt
type PromptOptions struct {
	// AssumeMedicalPass tells the model to pass medical validation when no
	// tenant medical rule was retrieved
	AssumeMedicalPass bool
}

// BuildPrompt constructs the advisory validation prompt for one claim
func BuildPrompt(claim *model.Claim, snippets []RuleSnippet, opts PromptOptions) string {
	var b strings.Builder

	b.WriteString("You are a senior medical claims validation expert. Evaluate the claim below ")
	b.WriteString("strictly against the adjudication rules provided.\n\n")

	b.WriteString("CLAIM INFORMATION:\n")
	b.WriteString(strings.Repeat("=", 18) + "\n")
	fmt.Fprintf(&b, "- Claim ID: %s\n", orNA(claim.ClaimID))
	fmt.Fprintf(&b, "- Encounter Type: %s\n", orNA(string(claim.EncounterType)))
	fmt.Fprintf(&b, "- Service Date: %s\n", formatDate(claim))
	fmt.Fprintf(&b, "- Service Code: %s\n", orNA(claim.ServiceCode))
	fmt.Fprintf(&b, "- Diagnosis Codes: %s\n", orNA(strings.Join(claim.DiagnosisCodes, ", ")))
	fmt.Fprintf(&b, "- Facility ID: %s\n", orNA(claim.FacilityID))
	fmt.Fprintf(&b, "- Member ID: %s\n", orNA(claim.MemberID))
	fmt.Fprintf(&b, "- National ID: %s\n", orNA(claim.NationalID))
	fmt.Fprintf(&b, "- Unique ID: %s\n", orNA(claim.UniqueID))
	if claim.PaidAmount != nil {
		fmt.Fprintf(&b, "- Paid Amount: %.2f AED\n", *claim.PaidAmount)
	} else {
		b.WriteString("- Paid Amount: N/A\n")
	}
	fmt.Fprintf(&b, "- Approval Number: %s\n\n", orNA(claim.ApprovalNumber))
	if claim.HasApproval() {
		b.WriteString("An approval number is present. Do NOT report a missing approval for this claim.\n\n")
	}

	// Static findings
	if len(claim.TechnicalErrors) > 0 {
		b.WriteString("TECHNICAL ERRORS:\n")
		b.WriteString("If technical errors are listed, TECHNICAL_VALIDATION must be FAIL.\n\n")
		for i, f := range claim.TechnicalErrors {
			fmt.Fprintf(&b, "%d. %s\n   Detail: %s\n   Reference: %s\n   Severity: %s\n\n",
				i+1, f.RuleName, f.Detail, orNA(f.RuleReference), f.Severity)
		}
	} else {
		b.WriteString("TECHNICAL ERRORS: None detected.\n")
		b.WriteString("Since no technical errors are listed, TECHNICAL_VALIDATION must be PASS.\n\n")
	}

	if len(claim.MedicalErrors) > 0 {
		b.WriteString("EXISTING MEDICAL ERRORS:\n")
		b.WriteString("If medical errors are listed, MEDICAL_VALIDATION must be FAIL.\n\n")
		for i, f := range claim.MedicalErrors {
			fmt.Fprintf(&b, "%d. %s\n   Detail: %s\n\n", i+1, f.RuleName, f.Detail)
		}
	}

	b.WriteString("RESTRICTIONS:\n")
	b.WriteString("1. Validate ONLY against the rules in 'RELEVANT ADJUDICATION RULES'.\n")
	b.WriteString("2. Do not infer rules from general medical knowledge.\n")
	b.WriteString("3. A rule that is not listed does not apply to this claim.\n\n")

	b.WriteString("Check, in order: service-diagnosis requirements, service-encounter eligibility, ")
	b.WriteString("facility-service eligibility, mutually exclusive diagnoses, approval requirements.\n\n")

	// Retrieved rules
	b.WriteString("RELEVANT ADJUDICATION RULES:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	if len(snippets) == 0 {
		b.WriteString("NO RULES RETRIEVED.\n\n")
	} else {
		for i, s := range snippets {
			if i >= maxPromptRules {
				break
			}
			content := s.Content
			if len(content) > maxRuleSnippetLen {
				content = content[:maxRuleSnippetLen]
			}
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, strings.ToUpper(string(s.Kind)), content)
		}
		b.WriteString("\n")
	}
	if opts.AssumeMedicalPass && !HasMedicalRules(snippets) {
		b.WriteString("No tenant medical rules apply to this claim: report MEDICAL_VALIDATION as PASS.\n\n")
	}

	if len(claim.TechnicalErrors) == 0 && len(claim.TechnicalPassed) > 0 {
		b.WriteString("TECHNICAL RULES VALIDATED:\n")
		for i, f := range claim.TechnicalPassed {
			fmt.Fprintf(&b, "%d. %s (%s)\n   ✓ %s\n", i+1, f.RuleName, orNA(f.RuleReference), f.Detail)
		}
		b.WriteString("\n")
	}

	b.WriteString(responseFormat)
	return b.String()
}

// responseFormat is the section layout ParseResponse reads
const responseFormat = `FORMAT YOUR RESPONSE AS:
=========================
EXECUTIVE_SUMMARY: [2-3 sentence summary]
VALIDATION_STATUS:
  TECHNICAL_VALIDATION: [PASS/FAIL]
  MEDICAL_VALIDATION: [PASS/FAIL]
  OVERALL_STATUS: [VALID/INVALID]
DETAILED_EXPLANATION: [explanation, one bullet per checked rule]
TECHNICAL_RULES_STATUS:
  - Rule Name: [PASS/FAIL] - [Brief reason]
MEDICAL_RULES_STATUS:
  - Rule #N or Rule Name: [PASS/FAIL] - [Brief reason]
RECOMMENDATIONS: [numbered list of specific recommendations with priorities]
CONFIDENCE: [0.0-1.0 number]
NOTES: [any additional observations]

Use exactly "PASS" or "FAIL" in capitals. OVERALL_STATUS is VALID only if both validations PASS.
`

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func formatDate(claim *model.Claim) string {
	if claim.ServiceDate == nil {
		return "N/A"
	}
	return claim.ServiceDate.Format("2006-01-02")
}
