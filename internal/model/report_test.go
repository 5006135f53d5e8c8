package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_AdvanceInOrder(t *testing.T) {
	b := &Batch{}
	for _, s := range []Stage{StageIngested, StageDataQualityChecked, StageStaticallyValidated, StageAdvisoryEvaluated, StageReconciled, StagePersisted} {
		require.NoError(t, b.Advance(s))
		assert.Equal(t, s.String(), b.StageName)
	}
}

func TestBatch_AdvanceSkipsAdvisory(t *testing.T) {
	b := &Batch{Stage: StageStaticallyValidated}
	require.NoError(t, b.Advance(StageReconciled))
	assert.Equal(t, StageReconciled, b.Stage)
}

func TestBatch_AdvanceRejectsOutOfOrder(t *testing.T) {
	tests := []struct {
		from, to Stage
	}{
		{StageNone, StageDataQualityChecked},
		{StageIngested, StageIngested},
		{StageReconciled, StageAdvisoryEvaluated},
		{StageDataQualityChecked, StageReconciled},
		{StageAdvisoryEvaluated, StagePersisted},
	}

	for _, tt := range tests {
		b := &Batch{Stage: tt.from}
		err := b.Advance(tt.to)
		assert.True(t, errors.Is(err, ErrStageOrder), "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, b.Stage)
	}
}

func TestBatchMetrics_Add(t *testing.T) {
	amount := func(v float64) *float64 { return &v }

	var m BatchMetrics
	m.Add(&Claim{Status: StatusValidated, ErrorType: ErrorTypeNone, PaidAmount: amount(100)})
	m.Add(&Claim{Status: StatusNotValidated, ErrorType: ErrorTypeBoth, PaidAmount: amount(50)})
	m.Add(&Claim{Status: StatusNotValidated, ErrorType: ErrorTypeTechnical})

	assert.Equal(t, 3, m.TotalClaims)
	assert.Equal(t, 1, m.ValidatedClaims)
	assert.Equal(t, 2, m.NotValidatedClaims)
	assert.Equal(t, 1, m.NoErrorCount)
	assert.Equal(t, 2, m.TechnicalCount)
	assert.Equal(t, 1, m.MedicalCount)
	assert.Equal(t, 1, m.BothCount)
	assert.Equal(t, 150.0, m.TotalPaidAmount)
	assert.Equal(t, 100.0, m.ValidatedAmount)
	assert.Equal(t, 50.0, m.RejectedAmount)
}

func TestBatchMetrics_AddDataQualityAndRejected(t *testing.T) {
	amount := func(v float64) *float64 { return &v }
	incomplete := []Finding{{RuleName: "Negative Paid Amount"}}

	var m BatchMetrics
	m.Add(&Claim{Status: StatusValidated, ErrorType: ErrorTypeNone, PaidAmount: amount(100)})
	m.Add(&Claim{Status: StatusNotValidated, ErrorType: ErrorTypeTechnical, DataQualityErrors: incomplete, PaidAmount: amount(-5)})
	m.Add(&Claim{Status: StatusNotValidated, ErrorType: ErrorTypeDataQuality, PaidAmount: amount(40)})
	m.Add(&Claim{Status: StatusNotValidated, ErrorType: ErrorTypeTechnical, PaidAmount: amount(math.Inf(1))})

	assert.Equal(t, 4, m.TotalClaims)
	assert.Equal(t, 3, m.NotValidatedClaims)
	assert.Equal(t, 2, m.DataQualityCount)
	assert.Equal(t, 1, m.TechnicalCount)
	assert.Equal(t, 1, m.NoErrorCount)
	assert.Equal(t, 140.0, m.TotalPaidAmount)
	assert.Equal(t, 40.0, m.RejectedAmount)
}

func TestClaim_Err(t *testing.T) {
	assert.NoError(t, (&Claim{Status: StatusValidated, ErrorType: ErrorTypeNone}).Err())
	assert.NoError(t, (&Claim{Status: StatusProcessing}).Err())

	both := &Claim{
		Status:          StatusNotValidated,
		ErrorType:       ErrorTypeBoth,
		TechnicalErrors: []Finding{{Detail: "no approval"}},
		MedicalErrors:   []Finding{{Detail: "wrong facility"}},
	}
	err := both.Err()
	assert.ErrorIs(t, err, ErrTechnical)
	assert.ErrorIs(t, err, ErrMedical)
	assert.NotErrorIs(t, err, ErrDataQuality)
	assert.Contains(t, err.Error(), "no approval")

	incomplete := &Claim{
		Status:            StatusNotValidated,
		ErrorType:         ErrorTypeTechnical,
		DataQualityErrors: []Finding{{Detail: "missing member_id"}},
	}
	assert.ErrorIs(t, incomplete.Err(), ErrDataQuality)
	assert.NotErrorIs(t, incomplete.Err(), ErrTechnical)

	bare := &Claim{Status: StatusNotValidated, ErrorType: ErrorTypeMedical}
	assert.ErrorIs(t, bare.Err(), ErrMedical)
}

func TestNewClaim_DropsNonFiniteAmount(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		c := NewClaim(RawRecord{ClaimID: "C1", PaidAmount: &v}, "acme", "b1", 1)
		assert.Nil(t, c.PaidAmount)
	}

	v := -5.0
	c := NewClaim(RawRecord{ClaimID: "C1", PaidAmount: &v}, "acme", "b1", 1)
	require.NotNil(t, c.PaidAmount)
	assert.Equal(t, -5.0, *c.PaidAmount)
}

func TestNewClaim_Normalises(t *testing.T) {
	c := NewClaim(RawRecord{
		ClaimID:        " C1 ",
		EncounterType:  " outpatient",
		ServiceCode:    " SRV2001 ",
		DiagnosisCodes: []string{"J45", " ", " E11.9"},
	}, "acme", "b1", 3)

	assert.Equal(t, " C1 ", c.ClaimID)
	assert.Equal(t, EncounterOutpatient, c.EncounterType)
	assert.Equal(t, "SRV2001", c.ServiceCode)
	assert.Equal(t, []string{"J45", "E11.9"}, c.DiagnosisCodes)
	assert.Equal(t, StatusProcessing, c.Status)
	assert.Equal(t, 3, c.RowIndex)
	assert.False(t, c.IsTerminal())
}
