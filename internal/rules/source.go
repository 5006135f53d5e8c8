package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/claimcheck/internal/model"
)

// Source is the backing store for rule documents
type Source interface {
	// Read returns the raw document, or an error wrapping model.ErrNotFound
	Read(ctx context.Context, tenant string, kind model.RuleKind) ([]byte, error)

	// Write replaces the document atomically
	Write(ctx context.Context, tenant string, kind model.RuleKind, data []byte) error
}

// FileSource stores documents as {dir}/{tenant}/{kind}_rules.json
type FileSource struct {
	dir string
}

// NewFileSource creates a file-backed rule source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Read loads a rule document from disk
func (s *FileSource) Read(ctx context.Context, tenant string, kind model.RuleKind) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(tenant, kind)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", tenant, kind, model.ErrNotFound)
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return data, nil
}

// Write persists a rule document through a temp file and rename, so readers
// see either the old or the new bytes.
func (s *FileSource) Write(ctx context.Context, tenant string, kind model.RuleKind, data []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(tenant, kind)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+string(kind)+"_rules-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rules file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close rules file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace rules file: %w", err)
	}
	return nil
}

func (s *FileSource) path(tenant string, kind model.RuleKind) (string, error) {
	if tenant == "" || strings.ContainsAny(tenant, `/\`) || tenant == "." || tenant == ".." {
		return "", fmt.Errorf("%w: invalid tenant id %q", model.ErrConfiguration, tenant)
	}
	return filepath.Join(s.dir, tenant, string(kind)+"_rules.json"), nil
}
