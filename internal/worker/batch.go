package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Validator runs the full validation pipeline over one claims file
type Validator interface {
	ValidateFile(ctx context.Context, tenantID, path string) (*model.Batch, error)
}

// FileResult represents the result of validating one file
type FileResult struct {
	Index int
	Path  string
	Batch *model.Batch
	Error error
}

// BatchProcessor validates multiple claims files concurrently. Each file
// becomes its own batch.
type BatchProcessor struct {
	validator   Validator
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(validator Validator, concurrency int) *BatchProcessor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BatchProcessor{
		validator:   validator,
		concurrency: concurrency,
	}
}

// ProcessFiles validates every file and returns results in input order.
// A failing file never stops its siblings; cancelling ctx stops new files
// from starting and waits for the ones in flight.
func (b *BatchProcessor) ProcessFiles(ctx context.Context, tenantID string, paths []string) []*FileResult {
	results := make([]*FileResult, len(paths))
	if len(paths) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			batch, err := b.validator.ValidateFile(ctx, tenantID, path)
			results[i] = &FileResult{Index: i, Path: path, Batch: batch, Error: err}
			return nil
		})
	}
	_ = g.Wait()

	// Files never picked up because the run was cancelled
	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &FileResult{Index: i, Path: paths[i], Error: fmt.Errorf("not processed: %w", err)}
		}
	}

	return results
}

// ProcessList reads a file list and validates every file in it
func (b *BatchProcessor) ProcessList(ctx context.Context, tenantID, listPath string) ([]*FileResult, error) {
	paths, err := ReadFileList(listPath)
	if err != nil {
		return nil, fmt.Errorf("read file list: %w", err)
	}

	return b.ProcessFiles(ctx, tenantID, paths), nil
}

// ReadFileList reads claims file paths from a list file (one per line).
// Relative paths are resolved against the list file's directory.
func ReadFileList(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	base := filepath.Dir(listPath)
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}

		// Deduplicate paths
		if !seen[line] {
			seen[line] = true
			paths = append(paths, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return paths, nil
}
