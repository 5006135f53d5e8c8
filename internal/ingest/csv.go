package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// ReadCSV parses a CSV upload with a header row. A UTF-8 byte order mark
// before the header is skipped.
func ReadCSV(r io.Reader) ([]model.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("claims file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []model.RawRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if blank(row) {
			continue
		}

		records = append(records, buildRecord(header, row))
	}
	return records, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
