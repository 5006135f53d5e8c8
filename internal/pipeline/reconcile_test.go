package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
)

func staticClaim(technical, medical []model.Finding) *model.Claim {
	c := &model.Claim{ClaimID: "CLM-1", TechnicalErrors: technical, MedicalErrors: medical}
	aggregate(c)
	return c
}

func finding(rule, detail string) model.Finding {
	return model.Finding{RuleName: rule, Detail: detail, Severity: model.SeverityError}
}

func TestClassify_PrecedenceTable(t *testing.T) {
	tests := []struct {
		technical, medical bool
		status             model.Status
		errorType          model.ErrorType
	}{
		{false, false, model.StatusValidated, model.ErrorTypeNone},
		{true, false, model.StatusNotValidated, model.ErrorTypeTechnical},
		{false, true, model.StatusNotValidated, model.ErrorTypeMedical},
		{true, true, model.StatusNotValidated, model.ErrorTypeBoth},
	}

	for _, tt := range tests {
		status, errorType := classify(tt.technical, tt.medical)
		assert.Equal(t, tt.status, status)
		assert.Equal(t, tt.errorType, errorType)
	}
}

func TestAggregate_Explanations(t *testing.T) {
	c := staticClaim([]model.Finding{finding("A", "first")}, []model.Finding{finding("B", "second")})
	assert.Equal(t, "• first\n• second", c.ErrorExplanation)
	assert.Equal(t, technicalAction, c.RecommendedAction)

	c = staticClaim(nil, []model.Finding{finding("B", "second")})
	assert.Equal(t, medicalAction, c.RecommendedAction)
}

func TestReconcile_NilOpinionIsNoop(t *testing.T) {
	c := staticClaim([]model.Finding{finding("A", "first")}, nil)
	before := *c

	Reconcile(c, nil)
	assert.Equal(t, before, *c)
}

func TestReconcile_StaticTechnicalErrorsAreAuthoritative(t *testing.T) {
	c := staticClaim([]model.Finding{finding("Service Requires Prior Approval", "no approval")}, nil)

	Reconcile(c, &model.AdvisoryOpinion{
		TechnicalStatus: model.VerdictPass,
		MedicalStatus:   model.VerdictPass,
		Explanation:     "Looks fine",
	})

	assert.Equal(t, model.ErrorTypeTechnical, c.ErrorType)
	require.Len(t, c.TechnicalErrors, 1)
	assert.Equal(t, "• no approval\n\n--- Advisory Review ---\nLooks fine", c.ErrorExplanation)
	assert.Equal(t, technicalAction, c.RecommendedAction)
}

func TestReconcile_AdvisoryTechnicalFailOnCleanClaim(t *testing.T) {
	c := staticClaim(nil, nil)

	Reconcile(c, &model.AdvisoryOpinion{
		TechnicalStatus: model.VerdictFail,
		TechnicalRules: []model.RuleStatus{
			{Rule: "ID Format", Status: model.VerdictFail, Reason: "segment mismatch"},
			{Rule: "Approval", Status: model.VerdictPass},
		},
	})

	assert.Equal(t, model.ErrorTypeTechnical, c.ErrorType)
	require.Len(t, c.TechnicalErrors, 1)
	assert.Equal(t, "ID Format", c.TechnicalErrors[0].RuleName)
	assert.Equal(t, refAdvisory, c.TechnicalErrors[0].RuleReference)
	assert.Equal(t, "segment mismatch", c.TechnicalErrors[0].Detail)
}

func TestReconcile_MedicalPassClearsStaticErrors(t *testing.T) {
	c := staticClaim(nil, []model.Finding{finding("Facility-Service Eligibility", "not eligible")})
	c.TechnicalPassed = []model.Finding{{
		RuleName:      "Paid Amount Threshold",
		RuleReference: "Technical Rules Section 3",
		Detail:        "Paid amount 120.00 AED is within threshold of 5000.00 AED.",
	}}

	Reconcile(c, &model.AdvisoryOpinion{
		ConfidenceScore: 0.8,
		TechnicalStatus: model.VerdictPass,
		MedicalStatus:   model.VerdictPass,
		MedicalRules: []model.RuleStatus{
			{Rule: "Facility-Service Eligibility", Status: model.VerdictPass, Reason: "facility is a hospital"},
		},
		Explanation: "All rules satisfied.",
	})

	assert.Equal(t, model.StatusValidated, c.Status)
	assert.Equal(t, model.ErrorTypeNone, c.ErrorType)
	assert.Empty(t, c.MedicalErrors)
	assert.Equal(t, approveAction, c.RecommendedAction)

	want := strings.Join([]string{
		"TECHNICAL RULES VALIDATED:",
		strings.Repeat("=", 50),
		"✓ Paid Amount Threshold (Technical Rules Section 3)",
		"  Paid amount 120.00 AED is within threshold of 5000.00 AED.",
		"",
		"MEDICAL RULES VALIDATED:",
		strings.Repeat("=", 50),
		"✓ Facility-Service Eligibility - PASS",
		"  facility is a hospital",
		"",
		"All rules satisfied.",
	}, "\n")
	assert.Equal(t, want, c.ErrorExplanation)
	require.NotNil(t, c.Advisory)
	assert.Equal(t, 0.8, c.Advisory.Confidence)
}

func TestReconcile_MedicalUnknownKeepsStaticResult(t *testing.T) {
	c := staticClaim(nil, []model.Finding{finding("Mutually Exclusive Diagnoses", "exclusive")})

	Reconcile(c, &model.AdvisoryOpinion{MedicalStatus: model.VerdictUnknown})

	assert.Equal(t, model.ErrorTypeMedical, c.ErrorType)
	require.Len(t, c.MedicalErrors, 1)
	assert.Equal(t, medicalAction, c.RecommendedAction)
	assert.True(t, c.Advisory.Evaluated)
}

func TestReconcile_MedicalFailWithoutListUsesCatchAll(t *testing.T) {
	c := staticClaim(nil, nil)
	long := strings.Repeat("x", 900)

	Reconcile(c, &model.AdvisoryOpinion{
		MedicalStatus:     model.VerdictFail,
		Explanation:       long,
		RecommendedAction: "Refer for clinical review.",
	})

	assert.Equal(t, model.ErrorTypeMedical, c.ErrorType)
	require.Len(t, c.MedicalErrors, 1)
	assert.Equal(t, "Advisory Medical Validation", c.MedicalErrors[0].RuleName)
	assert.Len(t, c.MedicalErrors[0].Detail, maxAdvisoryDetail)
	assert.Equal(t, "Refer for clinical review.", c.RecommendedAction)
}

func TestReconcile_MedicalFailDedupesStaticFindings(t *testing.T) {
	c := staticClaim(nil, []model.Finding{finding("Mutually Exclusive Diagnoses", "exclusive")})

	Reconcile(c, &model.AdvisoryOpinion{
		MedicalStatus: model.VerdictFail,
		MedicalRules: []model.RuleStatus{
			{Rule: "Mutually Exclusive Diagnoses", Status: model.VerdictFail, Reason: "same rule"},
			{Rule: "Service-Diagnosis Requirement", Status: model.VerdictFail, Reason: "missing E11.9"},
		},
	})

	assert.Equal(t, []string{"Mutually Exclusive Diagnoses", "Service-Diagnosis Requirement"},
		[]string{c.MedicalErrors[0].RuleName, c.MedicalErrors[1].RuleName})
	assert.Len(t, c.MedicalErrors, 2)
	assert.Equal(t, "exclusive", c.MedicalErrors[0].Detail)
}

func TestReconcile_BothWhenAdvisoryAddsMedical(t *testing.T) {
	c := staticClaim([]model.Finding{finding("A", "tech")}, nil)

	Reconcile(c, &model.AdvisoryOpinion{
		MedicalStatus: model.VerdictFail,
		MedicalRules:  []model.RuleStatus{{Rule: "M", Status: model.VerdictFail, Reason: "med"}},
	})

	assert.Equal(t, model.ErrorTypeBoth, c.ErrorType)
	assert.Equal(t, "• tech\n• med", c.ErrorExplanation)
}
