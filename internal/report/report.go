// Package report renders validated batches as JSON, Parquet and console
// summaries.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Supported output formats
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// Renderer writes batch results
type Renderer struct {
	out     io.Writer
	verbose bool
}

// NewRenderer creates a renderer printing summaries to out
func NewRenderer(out io.Writer, verbose bool) *Renderer {
	if out == nil {
		out = os.Stderr
	}
	return &Renderer{out: out, verbose: verbose}
}

// Render writes the batch in every requested format under dir and returns
// the written paths in format order.
func (r *Renderer) Render(batch *model.Batch, dir string, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	base := filepath.Join(dir, batch.BatchID)
	var paths []string
	for _, format := range formats {
		switch strings.ToLower(format) {
		case FormatJSON:
			path := base + ".json"
			if err := r.RenderJSON(batch, path); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		case FormatParquet:
			path := base + ".parquet"
			if err := WriteParquet(batch, path); err != nil {
				return paths, err
			}
			paths = append(paths, path)
		default:
			return paths, fmt.Errorf("unsupported output format %q", format)
		}
	}
	return paths, nil
}

// RenderJSON writes the batch, its claims and metrics as indented JSON
func (r *Renderer) RenderJSON(batch *model.Batch, path string) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// RenderSummary prints a console summary of the batch
func (r *Renderer) RenderSummary(batch *model.Batch) {
	m := batch.Metrics
	w := r.out

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Batch %s\n", batch.BatchID)
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	if batch.SourceFile != "" {
		fmt.Fprintf(w, "  Source:          %s\n", batch.SourceFile)
	}
	fmt.Fprintf(w, "  Tenant:          %s\n", batch.TenantID)
	fmt.Fprintf(w, "  Stage:           %s\n", batch.Stage)
	fmt.Fprintf(w, "  Claims:          %d\n", m.TotalClaims)
	fmt.Fprintf(w, "  Validated:       %d (%.2f AED)\n", m.ValidatedClaims, m.ValidatedAmount)
	fmt.Fprintf(w, "  Not validated:   %d (%.2f AED)\n", m.NotValidatedClaims, m.RejectedAmount)
	fmt.Fprintf(w, "    Technical:     %d\n", m.TechnicalCount)
	fmt.Fprintf(w, "    Medical:       %d\n", m.MedicalCount)
	fmt.Fprintf(w, "    Both:          %d\n", m.BothCount)
	fmt.Fprintf(w, "    Data quality:  %d\n", m.DataQualityCount)
	if m.IdentityRejected > 0 {
		fmt.Fprintf(w, "  ID collisions:   %d\n", m.IdentityRejected)
	}
	if m.AdvisoryEvaluated > 0 || m.AdvisoryFailed > 0 {
		fmt.Fprintf(w, "  Advisory:        %d evaluated, %d failed\n", m.AdvisoryEvaluated, m.AdvisoryFailed)
	}
	fmt.Fprintf(w, "  Elapsed:         %dms\n", m.ProcessingTimeMS)
	fmt.Fprintf(w, "\n")

	if !r.verbose {
		return
	}

	for _, c := range batch.Claims {
		if c.Status == model.StatusValidated {
			continue
		}
		fmt.Fprintf(w, "  ✗ %s [%s]\n", c.ClaimID, c.ErrorType)
		for _, line := range strings.Split(c.ErrorExplanation, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(w, "      %s\n", line)
			}
		}
	}
	for _, c := range batch.Rejected {
		fmt.Fprintf(w, "  ✗ row %d [%s] %s\n", c.RowIndex, c.ErrorType, c.ErrorExplanation)
	}
	fmt.Fprintf(w, "\n")
}
