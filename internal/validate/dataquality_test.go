package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimcheck/internal/model"
)

func completeClaim() *model.Claim {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return &model.Claim{
		ClaimID:       "CLM-1",
		EncounterType: model.EncounterOutpatient,
		ServiceDate:   &date,
		NationalID:    "NID001234",
		MemberID:      "M0012345",
		FacilityID:    "FAC001234",
		ServiceCode:   "SRV2001",
		PaidAmount:    amount(120),
	}
}

func TestDataQuality_CompleteClaimIsClean(t *testing.T) {
	checker := NewDataQualityChecker(nil)
	assert.Empty(t, checker.Check(completeClaim()))
}

func TestDataQuality_MissingExpectedFields(t *testing.T) {
	checker := NewDataQualityChecker(nil)

	claim := completeClaim()
	claim.MemberID = ""
	claim.ServiceDate = nil

	errs := checker.Check(claim)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Detail, "'service_date'")
	assert.Contains(t, errs[1].Detail, "'member_id'")
}

func TestDataQuality_NegativeAmountAndBadEncounter(t *testing.T) {
	checker := NewDataQualityChecker([]string{})

	claim := completeClaim()
	claim.PaidAmount = amount(-10)
	claim.EncounterType = "EMERGENCY"

	errs := checker.Check(claim)
	assert.Equal(t, []string{"Negative Paid Amount", "Invalid Encounter Type"}, ruleNames(errs))
	assert.Equal(t, "Invalid encounter type: EMERGENCY. Must be INPATIENT or OUTPATIENT", errs[1].Detail)
}

func TestDataQuality_NonFiniteAmount(t *testing.T) {
	checker := NewDataQualityChecker(nil)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		claim := completeClaim()
		claim.PaidAmount = amount(v)

		errs := checker.Check(claim)
		assert.Equal(t, []string{"Invalid Paid Amount"}, ruleNames(errs))
	}
}

func TestDataQuality_UnknownExpectedFieldIgnored(t *testing.T) {
	checker := NewDataQualityChecker([]string{"shoe_size"})
	assert.Empty(t, checker.Check(&model.Claim{}))
	assert.False(t, IsKnownField("shoe_size"))
	assert.True(t, IsKnownField("approval_number"))
}
