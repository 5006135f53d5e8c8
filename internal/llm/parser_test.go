package llm

import (
	"strings"
	"testing"

	"github.com/ppiankov/claimcheck/internal/model"
)

const structuredResponse = `EXECUTIVE_SUMMARY: The claim fails the encounter restriction.
VALIDATION_STATUS:
  TECHNICAL_VALIDATION: PASS
  MEDICAL_VALIDATION: FAIL
  OVERALL_STATUS: INVALID
DETAILED_EXPLANATION: SRV1001 is inpatient only but was billed as OUTPATIENT.
TECHNICAL_RULES_STATUS:
  - Prior Approval: PASS - approval number present
  - Unique ID Format: PASS - matches pattern
MEDICAL_RULES_STATUS:
  - Service-Encounter Type Restriction: FAIL - SRV1001 is inpatient only
  - Mutually Exclusive Diagnoses: PASS - no conflicting codes
RECOMMENDATIONS: 1. Rebill as INPATIENT.
CONFIDENCE: 0.85
NOTES: none`

func TestParseResponse_Structured(t *testing.T) {
	op := ParseResponse(structuredResponse)

	if op.TechnicalStatus != model.VerdictPass {
		t.Errorf("Expected technical PASS, got %q", op.TechnicalStatus)
	}
	if op.MedicalStatus != model.VerdictFail {
		t.Errorf("Expected medical FAIL, got %q", op.MedicalStatus)
	}
	if op.ConfidenceScore != 0.85 {
		t.Errorf("Expected confidence 0.85, got %v", op.ConfidenceScore)
	}
	if op.RecommendedAction != "1. Rebill as INPATIENT." {
		t.Errorf("Unexpected recommendation: %q", op.RecommendedAction)
	}
	if op.Explanation != "SRV1001 is inpatient only but was billed as OUTPATIENT." {
		t.Errorf("Unexpected explanation: %q", op.Explanation)
	}
	if !strings.HasPrefix(op.EnhancedExplanation, "EXECUTIVE SUMMARY:\nThe claim fails") {
		t.Errorf("Expected summary prefix, got %q", op.EnhancedExplanation)
	}
	if !strings.Contains(op.EnhancedExplanation, "DETAILED EXPLANATION:\nSRV1001") {
		t.Errorf("Expected detailed explanation, got %q", op.EnhancedExplanation)
	}

	if len(op.TechnicalRules) != 2 || len(op.MedicalRules) != 2 {
		t.Fatalf("Expected 2+2 rule lines, got %d+%d", len(op.TechnicalRules), len(op.MedicalRules))
	}
	failing := model.Failing(op.MedicalRules)
	if len(failing) != 1 || failing[0].Rule != "Service-Encounter Type Restriction" {
		t.Errorf("Unexpected failing medical rules: %+v", failing)
	}
	if failing[0].Reason != "SRV1001 is inpatient only" {
		t.Errorf("Unexpected reason: %q", failing[0].Reason)
	}
}

func TestParseResponse_MarkdownHeaders(t *testing.T) {
	text := "**VALIDATION_STATUS:**\n- **TECHNICAL_VALIDATION:** FAIL\n- **MEDICAL_VALIDATION:** pass\n## CONFIDENCE: 1.7"
	op := ParseResponse(text)

	if op.TechnicalStatus != model.VerdictFail {
		t.Errorf("Expected technical FAIL, got %q", op.TechnicalStatus)
	}
	if op.MedicalStatus != model.VerdictPass {
		t.Errorf("Expected medical PASS, got %q", op.MedicalStatus)
	}
	if op.ConfidenceScore != 1 {
		t.Errorf("Expected confidence clamped to 1, got %v", op.ConfidenceScore)
	}
}

func TestParseResponse_Unstructured(t *testing.T) {
	op := ParseResponse("I think this claim looks fine.")

	if op.TechnicalStatus != model.VerdictUnknown || op.MedicalStatus != model.VerdictUnknown {
		t.Errorf("Expected unknown statuses, got %q/%q", op.TechnicalStatus, op.MedicalStatus)
	}
	if op.ConfidenceScore != defaultConfidence {
		t.Errorf("Expected default confidence, got %v", op.ConfidenceScore)
	}
	if op.RecommendedAction != defaultRecommendation {
		t.Errorf("Expected default recommendation, got %q", op.RecommendedAction)
	}
	if op.Explanation != "I think this claim looks fine." {
		t.Errorf("Unexpected explanation: %q", op.Explanation)
	}
}

func TestParseResponse_Empty(t *testing.T) {
	op := ParseResponse("   ")
	if op.Explanation != "" || op.TechnicalStatus != model.VerdictUnknown {
		t.Errorf("Expected empty opinion, got %+v", op)
	}
}

func TestParseResponse_TruncatesExplanation(t *testing.T) {
	long := strings.Repeat("é", 800)
	op := ParseResponse("DETAILED_EXPLANATION: " + long)

	if n := len([]rune(op.Explanation)); n != maxExplanationLen {
		t.Errorf("Expected %d runes, got %d", maxExplanationLen, n)
	}
	if op.EnhancedExplanation != long {
		t.Error("Expected the full explanation to be kept")
	}
}

func TestParseResponse_MalformedStatusStaysUnknown(t *testing.T) {
	op := ParseResponse("VALIDATION_STATUS:\n  TECHNICAL_VALIDATION: maybe\n  MEDICAL_VALIDATION: FAIL")

	if op.TechnicalStatus != model.VerdictUnknown {
		t.Errorf("Expected unknown technical status, got %q", op.TechnicalStatus)
	}
	if op.MedicalStatus != model.VerdictFail {
		t.Errorf("Expected medical FAIL, got %q", op.MedicalStatus)
	}
}
