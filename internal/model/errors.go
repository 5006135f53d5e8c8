package model

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers wrap these with context and test with errors.Is.
var (
	ErrDataQuality         = errors.New("data quality error")
	ErrTechnical           = errors.New("technical rule violation")
	ErrMedical             = errors.New("medical rule violation")
	ErrAdvisoryUnavailable = errors.New("advisory evaluator unavailable")
	ErrConfiguration       = errors.New("rule configuration error")
	ErrIdentityCollision   = errors.New("claim identity collision")
	ErrNotFound            = errors.New("not found")
	ErrStageOrder          = errors.New("invalid stage transition")
)

// IdentityCollisionError is returned when a claim identifier still collides
// after disambiguation.
type IdentityCollisionError struct {
	Key      string
	RowIndex int
}

func (e *IdentityCollisionError) Error() string {
	return fmt.Sprintf("claim identity collision: %q (row %d) still collides after suffixing", e.Key, e.RowIndex)
}

func (e *IdentityCollisionError) Unwrap() error {
	return ErrIdentityCollision
}
