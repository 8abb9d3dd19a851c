package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes rows to the first sheet of a new workbook, starting at A1.
func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

// ============================================================================
// DetectFormat Tests
// ============================================================================

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		want    Format
		wantErr error
	}{
		{"xlsx extension", "manifest.xlsx", nil, FormatXLSX, nil},
		{"upper-case extension", "MANIFEST.XLSM", nil, FormatXLSX, nil},
		{"csv extension", "manifest.csv", nil, FormatDelimited, nil},
		{"tsv extension", "manifest.tsv", nil, FormatDelimited, nil},
		{"legacy xls", "manifest.xls", nil, "", ErrUnsupportedFormat},
		{"sniff zip", "upload", []byte("PK\x03\x04rest"), FormatXLSX, nil},
		{"sniff ole", "upload", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1}, "", ErrUnsupportedFormat},
		{"sniff text", "upload", []byte("Container No,Carrier\n"), FormatDelimited, nil},
		{"sniff binary", "upload", []byte{0xff, 0xfe, 0x00, 0x81}, "", ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.file, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DetectFormat() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFormat() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================================
// DecodeGrid Tests
// ============================================================================

func TestDecodeGrid_Delimited(t *testing.T) {
	data := []byte("\xEF\xBB\xBF,,\n\nContainer No,Shipping Line,ETA,Ref\nMSCU1234567,msc,45000,00123\n")

	grid, err := DecodeGrid("manifest.csv", data)
	if err != nil {
		t.Fatalf("DecodeGrid() error: %v", err)
	}
	if len(grid) != 2 {
		t.Fatalf("len(grid) = %d, want 2 (leading blank rows trimmed)", len(grid))
	}
	if got := grid[0][0].String(); got != "Container No" {
		t.Errorf("grid[0][0] = %q, want %q", got, "Container No")
	}

	eta := grid[1][2]
	if !eta.IsNum || eta.Num != 45000 {
		t.Errorf("ETA cell = %+v, want numeric 45000", eta)
	}
	ref := grid[1][3]
	if ref.IsNum || ref.Text != "00123" {
		t.Errorf("Ref cell = %+v, want text 00123", ref)
	}
}

func TestDecodeGrid_TabInsideCSVCell(t *testing.T) {
	data := []byte("Container No,Shipping Line,ETA,Remarks\n" +
		"MSCU1234567,MSC,01/02/2025,note\twith tab\n" +
		"HLCU7654321,Hapag,02/02/2025,ok\n")

	grid, err := DecodeGrid("manifest.csv", data)
	if err != nil {
		t.Fatalf("DecodeGrid() error: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("len(grid) = %d, want 3", len(grid))
	}
	for i, row := range grid {
		if len(row) != 4 {
			t.Errorf("row %d width = %d, want 4", i, len(row))
		}
	}
	if got := grid[1][3].String(); got != "note\twith tab" {
		t.Errorf("Remarks = %q, want the tab kept inside the cell", got)
	}
}

func TestFileSeparator(t *testing.T) {
	tests := []struct {
		name string
		file string
		text string
		want rune
	}{
		{"csv with tab in later cell", "m.csv", "a,b\nc,d\te\n", ','},
		{"csv saved with tabs", "m.csv", "a\tb\nc\td\n", '\t'},
		{"tsv with comma in cell", "m.tsv", "a\tb\nc,d\te\n", '\t'},
		{"txt sniffs first line", "m.txt", "\n a,b\nc\td\n", ','},
		{"no extension defaults to tab", "upload", "single\n", '\t'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fileSeparator(tt.file, tt.text); got != tt.want {
				t.Errorf("fileSeparator(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestDecodeGrid_Workbook(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"Container No", "Shipping Line", "ETA", "PO"},
		{"MSCU1234567", "msc", 45000, "45000"},
	})

	grid, err := DecodeGrid("manifest.xlsx", data)
	if err != nil {
		t.Fatalf("DecodeGrid() error: %v", err)
	}
	if len(grid) != 2 {
		t.Fatalf("len(grid) = %d, want 2", len(grid))
	}

	if eta := grid[1][2]; !eta.IsNum || eta.Num != 45000 {
		t.Errorf("ETA cell = %+v, want numeric 45000", eta)
	}
	if po := grid[1][3]; po.IsNum {
		t.Errorf("PO cell = %+v, want text (stored as string)", po)
	}
	if got := grid[1][0].String(); got != "MSCU1234567" {
		t.Errorf("container = %q, want MSCU1234567", got)
	}
}

func TestDecodeGrid_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{"empty file", "a.csv", nil, ErrEmptyInput},
		{"whitespace only", "a.csv", []byte("  \n\t\n"), ErrEmptyInput},
		{"blank cells only", "a.csv", []byte(",,\n,,\n"), ErrEmptyInput},
		{"legacy workbook", "a.xls", []byte("anything"), ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGrid(tt.file, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeGrid() error = %v, want %v", err, tt.wantErr)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not a *DecodeError", err)
			}
			if de.Source != tt.file {
				t.Errorf("DecodeError.Source = %q, want %q", de.Source, tt.file)
			}
		})
	}
}

func TestDecodeGrid_CorruptWorkbook(t *testing.T) {
	_, err := DecodeGrid("broken.xlsx", []byte("PK\x03\x04not really a zip"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("DecodeGrid() error = %v, want *DecodeError", err)
	}
}

// ============================================================================
// inferCell Tests
// ============================================================================

func TestInferCell(t *testing.T) {
	tests := []struct {
		input  string
		wantNm bool
	}{
		{"45000", true},
		{"3.5", true},
		{"0.5", true},
		{"0", true},
		{"00123", false},
		{"1234567890123456", false},
		{"MSCU1234567", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := inferCell(tt.input); got.IsNum != tt.wantNm {
				t.Errorf("inferCell(%q).IsNum = %v, want %v", tt.input, got.IsNum, tt.wantNm)
			}
		})
	}
}

// ============================================================================
// RowsFromGrid Tests
// ============================================================================

func TestRowsFromGrid(t *testing.T) {
	grid := Grid{
		{TextCell("Shipment Report")},
		{TextCell("Container No"), TextCell(""), TextCell("Carrier"), TextCell("Carrier")},
		{TextCell("MSCU1234567"), TextCell("x"), TextCell("MSC"), TextCell("MEDITERRANEAN")},
		{TextCell(""), TextCell("  ")},
		{TextCell("HLXU7654321"), Cell{}, TextCell("Hapag"), Cell{}, TextCell("overflow")},
	}

	rows, err := RowsFromGrid(grid, 1)
	if err != nil {
		t.Fatalf("RowsFromGrid() error: %v", err)
	}

	want := []RawRow{
		{
			{Key: "Container No", Value: TextCell("MSCU1234567")},
			{Key: "__EMPTY", Value: TextCell("x")},
			{Key: "Carrier", Value: TextCell("MSC")},
			{Key: "Carrier_1", Value: TextCell("MEDITERRANEAN")},
		},
		{
			{Key: "Container No", Value: TextCell("HLXU7654321")},
			{Key: "Carrier", Value: TextCell("Hapag")},
			{Key: "__EMPTY_1", Value: TextCell("overflow")},
		},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("RowsFromGrid() mismatch (-want +got):\n%s", diff)
	}
}

func TestRowsFromGrid_HeaderOutOfRange(t *testing.T) {
	_, err := RowsFromGrid(Grid{{TextCell("a")}}, 3)
	if !errors.Is(err, ErrNoHeader) {
		t.Errorf("RowsFromGrid() error = %v, want ErrNoHeader", err)
	}
}

// ============================================================================
// DecodeText Tests
// ============================================================================

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []RawRow
	}{
		{
			name:  "tab separated",
			input: "Container No\tCarrier\tETA\nMSCU1234567\tmsc\t15/03/2023\n",
			want: []RawRow{{
				{Key: "Container No", Value: TextCell("MSCU1234567")},
				{Key: "Carrier", Value: TextCell("msc")},
				{Key: "ETA", Value: TextCell("15/03/2023")},
			}},
		},
		{
			name:  "comma separated with CRLF",
			input: "Container No, Carrier\r\nMSCU1234567 , msc\r\n",
			want: []RawRow{{
				{Key: "Container No", Value: TextCell("MSCU1234567")},
				{Key: "Carrier", Value: TextCell("msc")},
			}},
		},
		{
			name:  "tab wins over comma",
			input: "Container No\tNotes\nMSCU1234567\tlate, rerouted\n",
			want: []RawRow{{
				{Key: "Container No", Value: TextCell("MSCU1234567")},
				{Key: "Notes", Value: TextCell("late, rerouted")},
			}},
		},
		{
			name:  "missing trailing fields become empty",
			input: "Container No\tCarrier\tETA\nMSCU1234567\n",
			want: []RawRow{{
				{Key: "Container No", Value: TextCell("MSCU1234567")},
				{Key: "Carrier", Value: TextCell("")},
				{Key: "ETA", Value: TextCell("")},
			}},
		},
		{
			name:  "blank lines and empty rows skipped",
			input: "\n\nContainer No\tCarrier\n\n\t\nMSCU1234567\tmsc\n   \n",
			want: []RawRow{{
				{Key: "Container No", Value: TextCell("MSCU1234567")},
				{Key: "Carrier", Value: TextCell("msc")},
			}},
		},
		{
			name:  "header only",
			input: "Container No\tCarrier\n",
			want:  []RawRow{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeText(tt.input)
			if err != nil {
				t.Fatalf("DecodeText() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeText() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeText_Empty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n\t\n"} {
		_, err := DecodeText(input)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("DecodeText(%q) error = %v, want ErrEmptyInput", input, err)
		}
	}
}

// ============================================================================
// cleanText / ReadLimited Tests
// ============================================================================

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []byte
	}{
		{"valid unchanged", []byte("hello"), []byte("hello")},
		{"bom stripped", []byte("\xEF\xBB\xBFhello"), []byte("hello")},
		{"invalid byte replaced", []byte("hello\x80world"), []byte("hello�world")},
		{"truncated multibyte", []byte{0xc3}, []byte("�")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanText(tt.input); !bytes.Equal(got, tt.want) {
				t.Errorf("cleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(strings.NewReader("12345"), 5)
	if err != nil || string(data) != "12345" {
		t.Fatalf("ReadLimited(at limit) = %q, %v", data, err)
	}

	_, err = ReadLimited(strings.NewReader("123456"), 5)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("ReadLimited(over limit) error = %v, want ErrFileTooLarge", err)
	}
}
