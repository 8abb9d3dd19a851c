package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput        = errors.New("empty input: no rows found")
	ErrNoHeader          = errors.New("no header row found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrRecordNotFound    = errors.New("record not found")
	ErrManifestNotFound  = errors.New("manifest not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrRunExists         = errors.New("run already recorded")
	ErrUnknownField      = errors.New("unknown record field")
	ErrRunInProgress     = errors.New("tracking run already in progress")
	ErrNoActiveRun       = errors.New("no tracking run in progress")
	ErrNothingSelected   = errors.New("no records selected")
)

// DecodeError reports a manifest that could not be turned into rows.
// No partial record set is produced when it is returned.
type DecodeError struct {
	Source string // file name, or "paste"
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("decode manifest: %v", e.Err)
	}
	return fmt.Sprintf("decode manifest %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ExportError reports a failed export. Nothing is written when it is returned.
type ExportError struct {
	Format ExportFormat
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Format, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
