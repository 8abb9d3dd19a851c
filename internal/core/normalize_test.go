package core

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewNormalizer(t *testing.T) {
	n, err := NewNormalizer("")
	if err != nil {
		t.Fatalf("NewNormalizer(\"\") error: %v", err)
	}
	if n.Mode() != ProfileBroad {
		t.Errorf("default mode = %q, want %q", n.Mode(), ProfileBroad)
	}

	_, err = NewNormalizer("fuzzy")
	if err == nil || !strings.Contains(err.Error(), "unknown match mode") {
		t.Errorf("NewNormalizer(fuzzy) error = %v, want unknown match mode", err)
	}
}

func TestNormalizer_Field(t *testing.T) {
	tests := []struct {
		header    string
		wantBroad CanonicalField
		wantStrct CanonicalField
	}{
		{"Container No", FieldTrackingNumber, FieldTrackingNumber},
		{"CONTAINER NO.", FieldTrackingNumber, FieldTrackingNumber},
		{"Container", FieldTrackingNumber, FieldTrackingNumber},
		{"Container Number", FieldTrackingNumber, ""},
		{"Tracking #", FieldTrackingNumber, ""},
		{"Shipping Line", FieldCarrier, FieldCarrier},
		{" carrier ", FieldCarrier, FieldCarrier},
		{"Carrier Name", FieldCarrier, ""},
		{"ETA", FieldSystemETA, FieldSystemETA},
		{"ETA POD", FieldSystemETA, ""},
		{"Arrival Date", FieldSystemETA, ""},
		{"Booking Ref", "", ""},
	}

	broad, _ := NewNormalizer(ProfileBroad)
	strict, _ := NewNormalizer(ProfileStrict)

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, _ := broad.Field(tt.header)
			if got != tt.wantBroad {
				t.Errorf("broad.Field(%q) = %q, want %q", tt.header, got, tt.wantBroad)
			}
			got, _ = strict.Field(tt.header)
			if got != tt.wantStrct {
				t.Errorf("strict.Field(%q) = %q, want %q", tt.header, got, tt.wantStrct)
			}
		})
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n, _ := NewNormalizer(ProfileBroad)

	row := RawRow{
		{Key: "Container No", Value: TextCell(`="MSCU1234567"`)},
		{Key: "Shipping Line", Value: TextCell("msc")},
		{Key: "ETA", Value: NumberCell(45000)},
		{Key: "Booking Ref", Value: TextCell("BK-1")},
		{Key: "Tracking #", Value: TextCell("OTHER123456")},
	}

	got := n.Normalize(row)

	wantValues := map[CanonicalField]string{
		FieldTrackingNumber: "MSCU1234567",
		FieldCarrier:        "msc",
		FieldSystemETA:      "15/03/2023",
	}
	if diff := cmp.Diff(wantValues, got.Values); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}

	wantExtra := RawRow{{Key: "Booking Ref", Value: TextCell("BK-1")}}
	if diff := cmp.Diff(wantExtra, got.Extra); diff != "" {
		t.Errorf("Extra mismatch (-want +got):\n%s", diff)
	}

	wantCollisions := []Collision{{Field: FieldTrackingNumber, Kept: "Container No", Dropped: "Tracking #"}}
	if diff := cmp.Diff(wantCollisions, got.Collisions); diff != "" {
		t.Errorf("Collisions mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizer_TextETAKept(t *testing.T) {
	n, _ := NewNormalizer(ProfileBroad)

	got := n.Normalize(RawRow{{Key: "ETA", Value: TextCell("2024-05-01")}})
	if v := got.Get(FieldSystemETA); v != "2024-05-01" {
		t.Errorf("systemEta = %q, want text kept verbatim", v)
	}
	if got.Has(FieldCarrier) {
		t.Error("Has(carrier) = true for a row without a carrier column")
	}
}

func TestNormalizer_OutOfRangeSerialKeptAsNumber(t *testing.T) {
	n, _ := NewNormalizer(ProfileBroad)

	tests := []struct {
		num  float64
		want string
	}{
		{-3, "-3"},
		{0, "0"},
		{0.5, "0.5"},
		{2958466, "2958466"},
		{2958465, "31/12/9999"},
		{1, "31/12/1899"},
	}
	for _, tt := range tests {
		got := n.Normalize(RawRow{{Key: "ETA", Value: NumberCell(tt.num)}})
		if v := got.Get(FieldSystemETA); v != tt.want {
			t.Errorf("ETA %v -> systemEta %q, want %q", tt.num, v, tt.want)
		}
	}
}

func TestNormalizer_StrictLeavesLooseHeadersUnmapped(t *testing.T) {
	n, _ := NewNormalizer(ProfileStrict)

	got := n.Normalize(RawRow{
		{Key: "Container Number", Value: TextCell("MSCU1234567")},
		{Key: "Shipping Line", Value: TextCell("MSC")},
	})
	if got.Has(FieldTrackingNumber) {
		t.Errorf("strict mapped %q to trackingNumber", "Container Number")
	}
	if len(got.Extra) != 1 || got.Extra[0].Key != "Container Number" {
		t.Errorf("Extra = %+v, want the container column preserved", got.Extra)
	}
}

func TestNewNormalizerWithProfile(t *testing.T) {
	n, err := NewNormalizerWithProfile(RuleProfile{
		Name: "adhoc",
		Rules: []KeyRule{
			{Field: FieldTrackingNumber, Pattern: "CNTR"},
			{Field: FieldCarrier, Match: MatchExact, Pattern: "Line"},
		},
	})
	if err != nil {
		t.Fatalf("NewNormalizerWithProfile() error: %v", err)
	}

	if f, ok := n.Field("Cntr #"); !ok || f != FieldTrackingNumber {
		t.Errorf("Field(Cntr #) = %q, %v", f, ok)
	}
	if _, ok := n.Field("Line Haul"); ok {
		t.Error("exact rule matched a longer header")
	}

	if _, err := NewNormalizerWithProfile(RuleProfile{Name: "empty"}); err == nil {
		t.Error("NewNormalizerWithProfile() accepted a profile without rules")
	}
}
