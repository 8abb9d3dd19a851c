package core

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRawRow_JSONRoundTrip(t *testing.T) {
	row := RawRow{
		{Key: "Container", Value: TextCell("00123")},
		{Key: "ETA", Value: NumberCell(45000)},
		{Key: "__EMPTY", Value: TextCell("")},
	}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"key":"Container","value":"00123"},{"key":"ETA","value":45000},{"key":"__EMPTY","value":""}]`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}

	var got RawRow
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if diff := cmp.Diff(row, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCell_UnmarshalJSON_Rejects(t *testing.T) {
	var c Cell
	if err := json.Unmarshal([]byte(`{"a":1}`), &c); err == nil {
		t.Error("Unmarshal(object) returned no error")
	}
}

func TestLooseString_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    LooseString
		wantErr bool
	}{
		{"string", `"In Transit"`, "In Transit", false},
		{"number", `1.25`, "1.25", false},
		{"bool", `true`, "true", false},
		{"null", `null`, "", false},
		{"object", `{"x":1}`, "", true},
		{"array", `[1]`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got LooseString
			err := json.Unmarshal([]byte(tt.input), &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrackingState_Terminal(t *testing.T) {
	tests := []struct {
		state TrackingState
		want  bool
	}{
		{StatePending, false},
		{StateInFlight, false},
		{StateResolved, true},
		{StateFailed, true},
		{"", false},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
