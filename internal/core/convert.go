package core

// convert.go provides value coercion for manifest cells.
//
// Manifests come from many forwarders and carry the usual spreadsheet mess:
//   - Dates stored as day-count serials instead of text
//   - Day-first dates in several separators, with or without a time
//   - Excel formula prefixes (="value") and stray quotes
//   - Numbers written as text in CSV exports

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a plain decimal number.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// serialEpochOffset is the number of days between the spreadsheet serial
// day-zero and the Unix epoch.
const serialEpochOffset = 25569

// Spreadsheet serials outside [minDateSerial, maxDateSerial] are not dates.
// maxDateSerial is 31/12/9999, the last day spreadsheets can represent.
const (
	minDateSerial = 1
	maxDateSerial = 2958465
)

// DisplayDateLayout is the calendar format used for coerced date serials.
const DisplayDateLayout = "02/01/2006"

// etaLayouts are tried in order. Day-first layouts come before ISO ones.
var etaLayouts = []string{
	"02/01/2006 15:04", "2/1/2006 15:04", "02/01/2006", "2/1/2006",
	"02-01-2006 15:04", "02-01-2006", "02.01.2006",
	"02-Jan-2006", "2-Jan-2006", "02 Jan 2006", "2 Jan 2006", "Jan 2, 2006",
	"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02",
	time.RFC3339,
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ParseNumber returns the numeric value of s when it is a plain decimal number.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsDateSerial reports whether n falls in the spreadsheet date range.
func IsDateSerial(n float64) bool {
	return n >= minDateSerial && n <= maxDateSerial
}

// SerialToTime converts a spreadsheet date serial to a UTC time. Callers
// check IsDateSerial first; out-of-range serials overflow.
func SerialToTime(serial float64) time.Time {
	secs := math.Round((serial - serialEpochOffset) * 86400)
	return time.Unix(int64(secs), 0).UTC()
}

// SerialToDate converts a spreadsheet date serial to a DD/MM/YYYY string.
func SerialToDate(serial float64) string {
	return SerialToTime(serial).Format(DisplayDateLayout)
}

// ParseETA parses a free-form ETA string. Day-first formats win over
// month-first ones, so "03/04/2025" is the 3rd of April.
func ParseETA(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NotAvailable) {
		return time.Time{}, false
	}
	for _, layout := range etaLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ETAChanged reports whether both ETAs parse and fall on different days.
func ETAChanged(systemETA, liveETA string) bool {
	sys, ok := ParseETA(systemETA)
	if !ok {
		return false
	}
	live, ok := ParseETA(liveETA)
	if !ok {
		return false
	}
	sy, sm, sd := sys.Date()
	ly, lm, ld := live.Date()
	return sy != ly || sm != lm || sd != ld
}

// StatusCategory is a coarse classification of status text for display.
type StatusCategory string

const (
	CategoryArrived StatusCategory = "arrived"
	CategoryTransit StatusCategory = "transit"
	CategoryError   StatusCategory = "error"
	CategoryPending StatusCategory = "pending"
	CategoryOther   StatusCategory = "other"
)

// CategorizeStatus classifies free-form status text.
func CategorizeStatus(status string) StatusCategory {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "":
		return CategoryPending
	case strings.Contains(s, "arrived"), strings.Contains(s, "delivered"):
		return CategoryArrived
	case strings.Contains(s, "transit"), strings.Contains(s, "departed"):
		return CategoryTransit
	case strings.Contains(s, "error"), strings.Contains(s, "found"):
		return CategoryError
	default:
		return CategoryOther
	}
}

// firstNonEmpty returns the first value that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
