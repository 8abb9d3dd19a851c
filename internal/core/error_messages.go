package core

// error_messages.go defines user-friendly error messages with codes for
// support reference. When users encounter errors, they can quote the code
// to support staff for faster diagnosis.
//
// # Decode Errors (DEC001-DEC099)
//
// The manifest could not be turned into rows. No records were loaded.
//
//	DEC001 - Unsupported format: File type cannot be read
//	         Patterns: "unsupported file format"
//	DEC002 - Empty input: No rows found
//	         Patterns: "empty input"
//	DEC003 - No header: Header row could not be located
//	         Patterns: "no header row"
//	DEC004 - File too large: File exceeds the upload limit
//	         Patterns: "file too large"
//	DEC005 - Unknown match mode: Header matching profile does not exist
//	         Patterns: "unknown match mode"
//	DEC006 - Unreadable manifest: Any other decode failure
//	         Patterns: "invalid csv", "open workbook", "decode manifest"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Unsupported export format
//	         Patterns: "export format"
//	EXP002 - Export failed: Encoding the output failed, nothing was written
//	         Patterns: "export csv", "export xlsx"
//
// # Tracking Errors (TRK001-TRK099)
//
//	TRK001 - Run in progress: A run is already active for this manifest
//	TRK002 - System busy: Too many runs across all manifests
//	TRK003 - Nothing selected: No records are selected
//	TRK004 - No active run: Nothing to cancel
//	TRK005 - Cancelled: The run was cancelled
//	TRK006 - Timeout: The request timed out
//	TRK007 - Tracking service unreachable
//
// # Manifest Errors (MAN001-MAN099)
//
//	MAN001 - Manifest not found (expired or discarded)
//	MAN002 - Record not found
//	MAN003 - Unknown field in an edit request
//
// # Storage Errors (STO001-STO099)
//
//	STO001 - Run history could not be read or saved
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Request Errors (REQ001)
//
//	REQ001 - Request body could not be read
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error when users report ERR000.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// Export errors come first: unsupported export formats also mention
	// "unsupported file format".
	{
		pattern: "export format",
		msg: UserMessage{
			Message: "Export format is not supported",
			Action:  "Choose csv or xlsx",
			Code:    "EXP001",
		},
	},
	{
		pattern: "export csv",
		msg: UserMessage{
			Message: "The export could not be generated",
			Action:  "Please try again; no file was written",
			Code:    "EXP002",
		},
	},
	{
		pattern: "export xlsx",
		msg: UserMessage{
			Message: "The export could not be generated",
			Action:  "Please try again or export as CSV",
			Code:    "EXP002",
		},
	},

	// =========================================================================
	// Decode Errors (DEC001-DEC006)
	// =========================================================================
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file type cannot be read",
			Action:  "Upload an .xlsx, .csv or .txt file (save .xls workbooks as .xlsx)",
			Code:    "DEC001",
		},
	},
	{
		pattern: "empty input",
		msg: UserMessage{
			Message: "The manifest contains no rows",
			Action:  "Check the file or pasted text includes a header and data rows",
			Code:    "DEC002",
		},
	},
	{
		pattern: "no header row",
		msg: UserMessage{
			Message: "No header row was found",
			Action:  "Make sure the sheet has a row with column names",
			Code:    "DEC003",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the manifest into smaller files",
			Code:    "DEC004",
		},
	},
	{
		pattern: "unknown match mode",
		msg: UserMessage{
			Message: "Unknown header matching mode",
			Action:  "Use broad, strict, or a profile from the rules file",
			Code:    "DEC005",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "The manifest could not be read",
			Action:  "Check the file is a valid spreadsheet or comma/tab separated text",
			Code:    "DEC006",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The manifest could not be read",
			Action:  "Check the file is a valid spreadsheet or comma/tab separated text",
			Code:    "DEC006",
		},
	},
	{
		pattern: "decode manifest",
		msg: UserMessage{
			Message: "The manifest could not be read",
			Action:  "Check the file is a valid spreadsheet or comma/tab separated text",
			Code:    "DEC006",
		},
	},

	// =========================================================================
	// Tracking Errors (TRK001-TRK007)
	// =========================================================================
	{
		pattern: "tracking run already in progress",
		msg: UserMessage{
			Message: "A tracking run is already in progress for this manifest",
			Action:  "Wait for it to finish or cancel it first",
			Code:    "TRK001",
		},
	},
	{
		pattern: "too many tracking runs",
		msg: UserMessage{
			Message: "System is busy processing other tracking runs",
			Action:  "Please wait a moment and try again",
			Code:    "TRK002",
		},
	},
	{
		pattern: "no records selected",
		msg: UserMessage{
			Message: "No records are selected",
			Action:  "Select at least one shipment",
			Code:    "TRK003",
		},
	},
	{
		pattern: "no tracking run in progress",
		msg: UserMessage{
			Message: "There is no tracking run to cancel",
			Action:  "Start a tracking run first",
			Code:    "TRK004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The operation was cancelled",
			Action:  "Start it again when ready",
			Code:    "TRK005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Please try again",
			Code:    "TRK006",
		},
	},
	{
		pattern: "tracking service",
		msg: UserMessage{
			Message: "The tracking service could not be reached",
			Action:  "Check the service is running and try again",
			Code:    "TRK007",
		},
	},

	// =========================================================================
	// Manifest Errors (MAN001-MAN004)
	// =========================================================================
	{
		pattern: "manifest not found",
		msg: UserMessage{
			Message: "Manifest not found",
			Action:  "It may have expired. Please upload it again",
			Code:    "MAN001",
		},
	},
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Shipment record not found",
			Action:  "Refresh the manifest; the record may have been deleted",
			Code:    "MAN002",
		},
	},
	{
		pattern: "unknown record field",
		msg: UserMessage{
			Message: "This field cannot be edited",
			Action:  "Edit trackingNumber, carrier or systemEta",
			Code:    "MAN003",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Tracking run not found",
			Action:  "Check the run history for this manifest",
			Code:    "MAN004",
		},
	},

	// =========================================================================
	// Storage (STO001) and Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "run store",
		msg: UserMessage{
			Message: "Run history is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "STO001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the request body and try again",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error matches a known pattern rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
