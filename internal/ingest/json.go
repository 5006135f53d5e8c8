package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// ReadJSON parses either an array of claim objects or an object with a
// "claims" array
func ReadJSON(r io.Reader) ([]model.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read claims file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		var wrapped struct {
			Claims []map[string]any `json:"claims"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Claims == nil {
			return nil, fmt.Errorf("parse claims JSON: %w", err)
		}
		rows = wrapped.Claims
	}

	records := make([]model.RawRecord, 0, len(rows))
	for _, row := range rows {
		// Sorted keys keep "first column wins" deterministic
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = stringify(row[k])
		}
		records = append(records, buildRecord(keys, values))
	}
	return records, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}
