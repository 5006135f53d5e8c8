package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_AliasesAndBOM(t *testing.T) {
	input := "\ufeffClaim ID,Encounter Type,Service Date,National-ID,Member ID,Facility,Diagnosis,Service Code,Amount,Approval Number,Notes\n" +
		"CLM-1,outpatient,2025-03-14,NID001234,M0012345,FAC001234,\"E11.9; J45 R73.03\",SRV2001,\"1,250.50\",null,follow up\n" +
		",,,,,,,,,,\n" +
		"CLM-2,INPATIENT,03/15/2025,NID9,M9,FAC9,E66.9,SRV1001,abc,APP-7,\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "CLM-1", first.ClaimID)
	assert.Equal(t, "outpatient", first.EncounterType)
	require.NotNil(t, first.ServiceDate)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *first.ServiceDate)
	assert.Equal(t, "NID001234", first.NationalID)
	assert.Equal(t, "FAC001234", first.FacilityID)
	assert.Equal(t, []string{"E11.9", "J45", "R73.03"}, first.DiagnosisCodes)
	require.NotNil(t, first.PaidAmount)
	assert.Equal(t, 1250.5, *first.PaidAmount)
	assert.Empty(t, first.ApprovalNumber)
	assert.Equal(t, map[string]string{"notes": "follow up"}, first.Extra)

	second := records[1]
	require.NotNil(t, second.ServiceDate)
	assert.Equal(t, time.March, second.ServiceDate.Month())
	assert.Equal(t, 15, second.ServiceDate.Day())
	assert.Nil(t, second.PaidAmount)
	assert.Equal(t, "APP-7", second.ApprovalNumber)
}

func TestReadCSV_ExactColumnBeatsAlias(t *testing.T) {
	input := "id,claim_id,amount,paid_amount_aed\nX1,CLM-9,1,2\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CLM-9", records[0].ClaimID)
	assert.Equal(t, 2.0, *records[0].PaidAmount)
	assert.Equal(t, "X1", records[0].Extra["id"])
}

func TestReadCSV_NonFiniteAmounts(t *testing.T) {
	input := "claim_id,paid_amount_aed\nC1,NaN\nC2,nan\nC3,Inf\nC4,-Infinity\nC5,+inf\nC6,12.5\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 6)

	for _, rec := range records[:5] {
		assert.Nil(t, rec.PaidAmount, rec.ClaimID)
	}
	require.NotNil(t, records[5].PaidAmount)
	assert.Equal(t, 12.5, *records[5].PaidAmount)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadJSON(t *testing.T) {
	input := `[
		{"claim_id": "CLM-1", "paid_amount_aed": 6000, "diagnosis_codes": ["E11.9", "J45"], "approval_number": null},
		{"claimid": "CLM-2", "service_date": "2025-03-14T10:00:00Z", "extra_flag": true}
	]`

	records, err := ReadJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "CLM-1", records[0].ClaimID)
	assert.Equal(t, 6000.0, *records[0].PaidAmount)
	assert.Equal(t, []string{"E11.9", "J45"}, records[0].DiagnosisCodes)
	assert.Empty(t, records[0].ApprovalNumber)

	assert.Equal(t, "CLM-2", records[1].ClaimID)
	require.NotNil(t, records[1].ServiceDate)
	assert.Equal(t, 10, records[1].ServiceDate.Hour())
	assert.Equal(t, "true", records[1].Extra["extra_flag"])
}

func TestReadJSON_WrappedAndInvalid(t *testing.T) {
	records, err := ReadJSON(strings.NewReader(`{"claims": [{"claim_id": "A"}]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].ClaimID)

	_, err = ReadJSON(strings.NewReader(`{"rows": []}`))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "claims.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("claim_id\nA\nB\n"), 0644))
	records, err := ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	xlsPath := filepath.Join(dir, "claims.xlsx")
	require.NoError(t, os.WriteFile(xlsPath, []byte("x"), 0644))
	_, err = ReadFile(xlsPath)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestSplitDiagnosisCodes(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C", "D"}, SplitDiagnosisCodes(" A,B;C\tD "))
	assert.Nil(t, SplitDiagnosisCodes(" , ; "))
}
