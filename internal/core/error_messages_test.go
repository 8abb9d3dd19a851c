package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"unsupported upload", &DecodeError{Source: "a.xls", Err: ErrUnsupportedFormat}, "DEC001"},
		{"empty paste", &DecodeError{Source: "paste", Err: ErrEmptyInput}, "DEC002"},
		{"no header", &DecodeError{Source: "a.xlsx", Err: ErrNoHeader}, "DEC003"},
		{"too large", fmt.Errorf("%w: exceeds 10 bytes", ErrFileTooLarge), "DEC004"},
		{"bad mode", errors.New(`unknown match mode "fuzzy" (have broad, strict)`), "DEC005"},
		{"generic decode", &DecodeError{Source: "a.csv", Err: errors.New("bare quote")}, "DEC006"},
		{"unsupported export", fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, "pdf"), "EXP001"},
		{"export failure", &ExportError{Format: ExportXLSX, Err: errors.New("disk full")}, "EXP002"},
		{"run in progress", ErrRunInProgress, "TRK001"},
		{"busy", ErrTooManyRuns, "TRK002"},
		{"nothing selected", ErrNothingSelected, "TRK003"},
		{"nothing to cancel", ErrNoActiveRun, "TRK004"},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), "TRK005"},
		{"manifest expired", fmt.Errorf("%w: abc", ErrManifestNotFound), "MAN001"},
		{"record gone", fmt.Errorf("%w: 7", ErrRecordNotFound), "MAN002"},
		{"bad field", fmt.Errorf("%w: %q", ErrUnknownField, "status"), "MAN003"},
		{"run gone", fmt.Errorf("%w: abc", ErrRunNotFound), "MAN004"},
		{"store down", errors.New("run store: connection refused"), "STO001"},
		{"case insensitive", errors.New("RATE LIMIT exceeded"), "RATE001"},
		{"bad body", errors.New("invalid request body: unexpected EOF"), "REQ001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v) code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNothingSelected)

	expected := "No records are selected (Code: TRK003). Select at least one shipment"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", ErrManifestNotFound, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
