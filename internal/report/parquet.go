package report

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ppiankov/claimcheck/internal/model"
)

// ClaimRow is the flat Parquet layout of one validated claim
type ClaimRow struct {
	BatchID           string   `parquet:"batch_id"`
	TenantID          string   `parquet:"tenant_id"`
	ClaimID           string   `parquet:"claim_id"`
	RowIndex          int32    `parquet:"row_index"`
	EncounterType     string   `parquet:"encounter_type"`
	ServiceDate       *string  `parquet:"service_date,optional"`
	ServiceCode       string   `parquet:"service_code"`
	DiagnosisCodes    []string `parquet:"diagnosis_codes,list"`
	FacilityID        string   `parquet:"facility_id"`
	ApprovalNumber    string   `parquet:"approval_number"`
	PaidAmount        *float64 `parquet:"paid_amount_aed,optional"`
	NationalID        string   `parquet:"national_id"`
	MemberID          string   `parquet:"member_id"`
	UniqueID          string   `parquet:"unique_id"`
	Status            string   `parquet:"status"`
	ErrorType         string   `parquet:"error_type"`
	ErrorExplanation  string   `parquet:"error_explanation"`
	RecommendedAction string   `parquet:"recommended_action"`
	TechnicalErrors   int32    `parquet:"technical_error_count"`
	MedicalErrors     int32    `parquet:"medical_error_count"`
	DataQualityErrors int32    `parquet:"data_quality_error_count"`
	AdvisoryEvaluated bool     `parquet:"llm_evaluated"`
	AdvisoryScore     *float64 `parquet:"confidence_score,optional"`
}

// Rows flattens the batch's claims, identity rejections included
func Rows(batch *model.Batch) []ClaimRow {
	rows := make([]ClaimRow, 0, len(batch.Claims)+len(batch.Rejected))
	for _, c := range batch.Claims {
		rows = append(rows, toRow(batch, c))
	}
	for _, c := range batch.Rejected {
		rows = append(rows, toRow(batch, c))
	}
	return rows
}

func toRow(batch *model.Batch, c *model.Claim) ClaimRow {
	row := ClaimRow{
		BatchID:           batch.BatchID,
		TenantID:          batch.TenantID,
		ClaimID:           c.ClaimID,
		RowIndex:          int32(c.RowIndex),
		EncounterType:     string(c.EncounterType),
		ServiceCode:       c.ServiceCode,
		DiagnosisCodes:    c.DiagnosisCodes,
		FacilityID:        c.FacilityID,
		ApprovalNumber:    c.ApprovalNumber,
		PaidAmount:        c.PaidAmount,
		NationalID:        c.NationalID,
		MemberID:          c.MemberID,
		UniqueID:          c.UniqueID,
		Status:            string(c.Status),
		ErrorType:         string(c.ErrorType),
		ErrorExplanation:  c.ErrorExplanation,
		RecommendedAction: c.RecommendedAction,
		TechnicalErrors:   int32(len(c.TechnicalErrors)),
		MedicalErrors:     int32(len(c.MedicalErrors)),
		DataQualityErrors: int32(len(c.DataQualityErrors)),
	}
	if c.ServiceDate != nil {
		d := c.ServiceDate.Format(time.DateOnly)
		row.ServiceDate = &d
	}
	if c.Advisory != nil && c.Advisory.Evaluated {
		score := c.Advisory.Confidence
		row.AdvisoryEvaluated = true
		row.AdvisoryScore = &score
	}
	if row.DiagnosisCodes == nil {
		row.DiagnosisCodes = []string{}
	}
	// empty only for claims that never left Processing
	if row.ErrorType == "" {
		row.ErrorType = string(model.ErrorTypeUnknown)
	}
	return row
}

// WriteParquet writes the batch's claims as a Snappy-compressed Parquet file
func WriteParquet(batch *model.Batch, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[ClaimRow](file,
		parquet.Compression(&parquet.Snappy),
	)

	if _, err := writer.Write(Rows(batch)); err != nil {
		_ = writer.Close()
		_ = file.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return file.Close()
}
