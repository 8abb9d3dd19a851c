package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestIngester(t *testing.T, mode string) *Ingester {
	t.Helper()
	n, err := NewNormalizer(mode)
	if err != nil {
		t.Fatal(err)
	}
	return NewIngester(n, WithIngestLogger(quietLogger()))
}

func TestIngester_IngestFile_HeaderBelowTitle(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"ACME Forwarding - weekly report"},
		{"Printed", "2024-01-05"},
		{},
		{"Container No", "Shipping Line", "ETA", "Booking Ref"},
		{"MSCU1234567", "msc", 45000, "BK-1"},
		{"098-12345678", "", nil, "BK-2"},
		{"UNKNOWN", "maersk", 45001, "BK-3"},
		{"ABC", "maersk", 45001, "BK-4"},
	})

	result, err := newTestIngester(t, ProfileBroad).IngestFile("manifest.xlsx", data)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}

	if !result.HeaderFound || result.HeaderRow != 3 {
		t.Errorf("header = row %d found=%v, want row 3 found", result.HeaderRow, result.HeaderFound)
	}
	if result.RowsRead != 4 || result.Dropped != 2 {
		t.Errorf("RowsRead=%d Dropped=%d, want 4 and 2", result.RowsRead, result.Dropped)
	}

	got := make([]ShipmentRecord, len(result.Records))
	for i, r := range result.Records {
		r.Raw = nil
		got[i] = r
	}
	want := []ShipmentRecord{
		{TrackingNumber: "MSCU1234567", Carrier: "MSC", SystemETA: "15/03/2023", Mode: ModeSea, State: StatePending, Selected: true},
		{TrackingNumber: "098-12345678", Carrier: "Unknown", SystemETA: "N/A", Mode: ModeAir, State: StatePending, Selected: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	if ref, ok := result.Records[0].Raw.Get("Booking Ref"); !ok || ref.String() != "BK-1" {
		t.Errorf("raw Booking Ref = %q, %v; want preserved", ref.String(), ok)
	}
}

func TestIngester_IngestFile_TabInsideCSVCell(t *testing.T) {
	data := []byte("Container No,Shipping Line,ETA,Remarks\n" +
		"MSCU1234567,MSC,01/02/2025,note\twith tab\n" +
		"HLCU7654321,Hapag,02/02/2025,ok\n")

	result, err := newTestIngester(t, ProfileBroad).IngestFile("manifest.csv", data)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}
	if !result.HeaderFound {
		t.Error("header not found")
	}

	var got [][2]string
	for _, r := range result.Records {
		got = append(got, [2]string{r.TrackingNumber, r.Carrier})
	}
	want := [][2]string{{"MSCU1234567", "MSC"}, {"HLCU7654321", "HAPAG-LLOYD"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestIngester_IngestFile_NoHeaderUsesFirstRow(t *testing.T) {
	data := []byte("Container No,Carrier,ETA\nMSCU1234567,hapag,15/03/2023\n")

	result, err := newTestIngester(t, ProfileBroad).IngestFile("manifest.csv", data)
	if err != nil {
		t.Fatalf("IngestFile() error: %v", err)
	}
	if result.HeaderFound || result.HeaderRow != 0 {
		t.Errorf("header = row %d found=%v, want row 0 not found", result.HeaderRow, result.HeaderFound)
	}
	if len(result.Records) != 1 || result.Records[0].Carrier != "HAPAG-LLOYD" {
		t.Errorf("records = %+v", result.Records)
	}
}

func TestIngester_IngestFile_ReportsCollisionsOnce(t *testing.T) {
	data := []byte("Container No,Tracking Ref,Carrier\nMSCU1234567,T1,msc\nMSCU7654321,T2,msc\n")

	result, err := newTestIngester(t, ProfileBroad).IngestFile("manifest.csv", data)
	if err != nil {
		t.Fatal(err)
	}

	want := []Collision{{Field: FieldTrackingNumber, Kept: "Container No", Dropped: "Tracking Ref"}}
	if diff := cmp.Diff(want, result.Collisions); diff != "" {
		t.Errorf("collisions mismatch (-want +got):\n%s", diff)
	}
	if len(result.Records) != 2 {
		t.Errorf("admitted %d records, want 2", len(result.Records))
	}
}

func TestIngester_IngestText(t *testing.T) {
	text := "Container No\tCarrier\tETA\nMSCU1234567\tcma\t15/03/2023\n12345\tmsc\t\nHLXU7654321\n"

	result, err := newTestIngester(t, ProfileStrict).IngestText(text)
	if err != nil {
		t.Fatalf("IngestText() error: %v", err)
	}

	if result.Mode != ProfileStrict || !result.HeaderFound {
		t.Errorf("Mode=%q HeaderFound=%v", result.Mode, result.HeaderFound)
	}
	if result.RowsRead != 3 || result.Dropped != 1 || len(result.Records) != 2 {
		t.Fatalf("RowsRead=%d Dropped=%d admitted=%d", result.RowsRead, result.Dropped, len(result.Records))
	}

	second := result.Records[1]
	if second.TrackingNumber != "HLXU7654321" || second.Carrier != "Unknown" || second.SystemETA != "N/A" {
		t.Errorf("short row record = %+v", second)
	}
}

func TestIngester_DecodeErrors(t *testing.T) {
	ing := newTestIngester(t, ProfileBroad)

	if _, err := ing.IngestText("  \n"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("IngestText(blank) error = %v, want ErrEmptyInput", err)
	}
	if _, err := ing.IngestFile("old.xls", []byte("data")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("IngestFile(xls) error = %v, want ErrUnsupportedFormat", err)
	}
}
