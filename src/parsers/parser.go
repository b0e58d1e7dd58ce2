package parsers

import (
	"errors"
	"fmt"
	"io"

	"github.com/username/tradeclean/src/models"
)

// Parser decodes an uploaded export into a raw, all-text table.
type Parser interface {
	Parse(file io.Reader) (*models.Table, error)
}

var (
	// ErrNormalizationFailed matches every failure returned by Normalize.
	ErrNormalizationFailed = errors.New("normalization failed")
	// ErrSchema means the input could not be read as a table at all.
	ErrSchema = errors.New("input is not a readable table")
)

// NormalizationError is the single failure outcome of Normalize. It matches
// ErrNormalizationFailed and whatever lower-level error caused it.
type NormalizationError struct {
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNormalizationFailed, e.Err)
}

func (e *NormalizationError) Unwrap() []error {
	return []error{ErrNormalizationFailed, e.Err}
}
