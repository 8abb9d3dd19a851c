package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cell is one decoded spreadsheet or text value.
// Numeric cells keep their number so date serials can be recognized later.
type Cell struct {
	Text  string
	Num   float64
	IsNum bool
}

// TextCell returns a text cell.
func TextCell(s string) Cell {
	return Cell{Text: s}
}

// NumberCell returns a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Text: strconv.FormatFloat(f, 'f', -1, 64), Num: f, IsNum: true}
}

// String returns the cell as text. Numbers are formatted without exponent.
func (c Cell) String() string {
	if c.IsNum && c.Text == "" {
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	}
	return c.Text
}

// IsEmpty reports whether the cell holds only whitespace.
func (c Cell) IsEmpty() bool {
	return !c.IsNum && strings.TrimSpace(c.Text) == ""
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if c.IsNum {
		return json.Marshal(c.Num)
	}
	return json.Marshal(c.Text)
}

func (c *Cell) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = TextCell(s)
		return nil
	}
	if string(b) == "null" {
		*c = Cell{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("cell: %w", err)
	}
	*c = NumberCell(f)
	return nil
}

// Field is one key/value pair of a RawRow.
type Field struct {
	Key   string `json:"key"`
	Value Cell   `json:"value"`
}

// RawRow is one decoded row keyed by its original column labels, in column order.
type RawRow []Field

// Get returns the first value stored under key.
func (r RawRow) Get(key string) (Cell, bool) {
	for _, f := range r {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Cell{}, false
}

// Keys returns the row's column labels in order.
func (r RawRow) Keys() []string {
	keys := make([]string, len(r))
	for i, f := range r {
		keys[i] = f.Key
	}
	return keys
}

// Clone returns a copy that shares no backing array with r.
func (r RawRow) Clone() RawRow {
	if r == nil {
		return nil
	}
	out := make(RawRow, len(r))
	copy(out, r)
	return out
}

// CanonicalField is one of the business fields arbitrary headers map onto.
type CanonicalField string

const (
	FieldTrackingNumber CanonicalField = "trackingNumber"
	FieldCarrier        CanonicalField = "carrier"
	FieldSystemETA      CanonicalField = "systemEta"
)

// Valid reports whether f is a known canonical field.
func (f CanonicalField) Valid() bool {
	switch f {
	case FieldTrackingNumber, FieldCarrier, FieldSystemETA:
		return true
	}
	return false
}

// Collision records a column that mapped to an already-claimed canonical field.
type Collision struct {
	Field   CanonicalField `json:"field"`
	Kept    string         `json:"kept"`
	Dropped string         `json:"dropped"`
}

func (c Collision) String() string {
	return fmt.Sprintf("column %q dropped: %s already taken by %q", c.Dropped, c.Field, c.Kept)
}

// NormalizedRow holds the canonical values of one row plus its unmapped columns.
type NormalizedRow struct {
	Values     map[CanonicalField]string
	Extra      RawRow
	Collisions []Collision
}

// Get returns the canonical value for f, or "" when no column mapped to it.
func (n NormalizedRow) Get(f CanonicalField) string {
	return n.Values[f]
}

// Has reports whether a column mapped to f.
func (n NormalizedRow) Has(f CanonicalField) bool {
	_, ok := n.Values[f]
	return ok
}

// TransportMode classifies a tracking number as an air waybill or a sea container.
type TransportMode string

const (
	ModeAir TransportMode = "air"
	ModeSea TransportMode = "sea"
)

// TrackingState is the per-record lookup state.
type TrackingState string

const (
	StatePending  TrackingState = "pending"
	StateInFlight TrackingState = "in-flight"
	StateResolved TrackingState = "resolved"
	StateFailed   TrackingState = "failed"
)

// Terminal reports whether s ends a lookup.
func (s TrackingState) Terminal() bool {
	return s == StateResolved || s == StateFailed
}

// UnknownCarrier is used when a row has no carrier value.
const UnknownCarrier = "Unknown"

// NotAvailable fills optional text fields that have no value.
const NotAvailable = "N/A"

// StatusNetworkError is the status text of a record whose lookup failed.
const StatusNetworkError = "Network Error"

// ShipmentRecord is the durable unit of work.
type ShipmentRecord struct {
	ID             int           `json:"id"`
	TrackingNumber string        `json:"trackingNumber"`
	Carrier        string        `json:"carrier"`
	SystemETA      string        `json:"systemEta"`
	Mode           TransportMode `json:"transportMode"`
	State          TrackingState `json:"trackingState"`
	LiveETA        string        `json:"liveEta,omitempty"`
	Status         string        `json:"status,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	CO2            string        `json:"co2,omitempty"`
	ETAChanged     bool          `json:"etaChanged"`
	Selected       bool          `json:"selected"`
	Raw            RawRow        `json:"raw,omitempty"`
}

// StatusCategory returns the display category of the record's status.
func (r ShipmentRecord) StatusCategory() StatusCategory {
	return CategorizeStatus(r.Status)
}

// Progress is advisory telemetry emitted after each processed record.
type Progress struct {
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Percent   int           `json:"percent"`
	RecordID  int           `json:"recordId,omitempty"`
	State     TrackingState `json:"state,omitempty"`
}

// ProgressFunc receives progress updates from a tracking run.
type ProgressFunc func(Progress)

// RunSummary is the outcome of one tracking run.
type RunSummary struct {
	Total      int           `json:"total"`
	Resolved   int           `json:"resolved"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	ETAChanged []int         `json:"etaChanged,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Processed returns how many records reached a terminal state or were skipped.
func (s RunSummary) Processed() int {
	return s.Resolved + s.Failed + s.Skipped
}

// TrackRequest is the body of one remote lookup.
type TrackRequest struct {
	Number    string `json:"number"`
	Carrier   string `json:"carrier"`
	SystemETA string `json:"system_eta"`
}

// TrackResponse is the remote lookup result. Absent or empty fields fall back
// to defaults when applied to a record.
type TrackResponse struct {
	LiveETA      LooseString `json:"live_eta"`
	Status       LooseString `json:"status"`
	SmartSummary LooseString `json:"smart_summary"`
	Message      LooseString `json:"message"`
	CO2          LooseString `json:"co2"`
	ETAChanged   *bool       `json:"eta_changed"`
}

// Lookup resolves the live tracking state of one shipment.
type Lookup interface {
	Track(ctx context.Context, req TrackRequest) (TrackResponse, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, req TrackRequest) (TrackResponse, error)

func (f LookupFunc) Track(ctx context.Context, req TrackRequest) (TrackResponse, error) {
	return f(ctx, req)
}

// LooseString decodes a JSON string, number, boolean or null as text.
type LooseString string

func (s *LooseString) UnmarshalJSON(b []byte) error {
	switch {
	case len(b) == 0 || string(b) == "null":
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("expected scalar, got %s", b)
	default:
		*s = LooseString(b)
	}
	return nil
}
