// Package ingest reads claim upload files into typed records.
package ingest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ppiankov/claimcheck/internal/model"
)

// aliases maps accepted column spellings to canonical field names.
// Keys are normalised with normalizeHeader.
var aliases = map[string][]string{
	"claim_id":        {"claimid", "claim_id", "id", "claim_number"},
	"encounter_type":  {"encountertype", "encounter", "type"},
	"service_date":    {"servicedate", "date", "date_of_service"},
	"national_id":     {"nationalid", "patient_id"},
	"member_id":       {"memberid", "member", "member_number"},
	"facility_id":     {"facilityid", "facility", "provider_id"},
	"unique_id":       {"uniqueid", "unique_identifier"},
	"diagnosis_codes": {"diagnosiscodes", "diagnosis", "icd_codes"},
	"service_code":    {"servicecode", "service", "cpt_code", "procedure_code"},
	"paid_amount_aed": {"paidamount", "paid_amount", "amount", "amount_aed", "total_amount"},
	"approval_number": {"approvalnumber", "approval", "authorization_number"},
}

var canonical = buildCanonical()

func buildCanonical() map[string]string {
	out := make(map[string]string)
	for field, names := range aliases {
		out[field] = field
		for _, n := range names {
			if _, taken := out[n]; !taken {
				out[n] = field
			}
		}
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
}

// ReadFile reads a .csv or .json claims file
func ReadFile(path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open claims file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("unsupported claims file type %q (supported: .csv, .json)", filepath.Ext(path))
	}
}

// normalizeHeader lowercases a column name and folds spaces and hyphens to
// underscores
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// recordBuilder assembles a RawRecord from column values. Values that do
// not parse are left empty so the data quality stage reports them.
type recordBuilder struct {
	rec model.RawRecord
	set map[string]bool
}

func newRecordBuilder() *recordBuilder {
	return &recordBuilder{set: make(map[string]bool)}
}

// buildRecord maps one row. Columns named exactly like a field are applied
// before alias spellings, so "claim_id" beats "id" wherever it appears.
func buildRecord(headers, values []string) model.RawRecord {
	b := newRecordBuilder()
	for pass := 0; pass < 2; pass++ {
		for i, h := range headers {
			if i >= len(values) {
				break
			}
			key := normalizeHeader(h)
			_, exact := aliases[key]
			if exact == (pass == 0) {
				b.add(h, values[i])
			}
		}
	}
	return b.rec
}

// add assigns a raw column value. The first column mapped to a field wins;
// later ones and unknown columns are kept in Extra.
func (b *recordBuilder) add(header, value string) {
	key := normalizeHeader(header)
	field, known := canonical[key]
	if !known || b.set[field] {
		if strings.TrimSpace(value) == "" {
			return
		}
		if b.rec.Extra == nil {
			b.rec.Extra = make(map[string]string)
		}
		b.rec.Extra[key] = value
		return
	}
	b.set[field] = true

	value = strings.TrimSpace(value)
	switch field {
	case "claim_id":
		b.rec.ClaimID = value
	case "encounter_type":
		b.rec.EncounterType = value
	case "service_date":
		b.rec.ServiceDate = parseDate(value)
	case "national_id":
		b.rec.NationalID = value
	case "member_id":
		b.rec.MemberID = value
	case "facility_id":
		b.rec.FacilityID = value
	case "unique_id":
		b.rec.UniqueID = value
	case "diagnosis_codes":
		b.rec.DiagnosisCodes = SplitDiagnosisCodes(value)
	case "service_code":
		b.rec.ServiceCode = value
	case "paid_amount_aed":
		b.rec.PaidAmount = parseAmount(value)
	case "approval_number":
		b.rec.ApprovalNumber = nullable(value)
	}
}

// SplitDiagnosisCodes splits a code list on commas, semicolons and whitespace
func SplitDiagnosisCodes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parseAmount returns nil for blank, null-like and non-finite values
func parseAmount(s string) *float64 {
	s = strings.ReplaceAll(s, ",", "")
	s = nullable(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "AED")))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// nullable maps spreadsheet spellings of "no value" to empty
func nullable(s string) string {
	switch strings.ToLower(s) {
	case "null", "none", "nan", "n/a", "na":
		return ""
	}
	return s
}
