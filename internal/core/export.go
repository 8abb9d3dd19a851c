package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportFormat is an output encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportSheetName names the single worksheet of an xlsx export.
const ExportSheetName = "Updated Tracking"

// Export column headers, in output order.
const (
	ColContainerNo = "Container No"
	ColCarrier     = "Carrier"
	ColSystemETA   = "System ETA"
	ColLiveETA     = "Live ETA"
	ColCO2         = "CO2 Emissions"
	ColStatus      = "Status"
	ColSummary     = "Summary"
	ColETAChanged  = "ETA Changed"
)

// ParseExportFormat parses "csv" or "xlsx" (case-insensitive, optional dot).
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")) {
	case ExportCSV, "":
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportFilename returns Tracking_Update_YYYY-MM-DD.<ext> for the UTC date of now.
func ExportFilename(f ExportFormat, now time.Time) string {
	return fmt.Sprintf("Tracking_Update_%s.%s", now.UTC().Format("2006-01-02"), f)
}

// ExportTable projects records onto the fixed output columns. The CO2 column
// is only present when at least one record carries a value.
func ExportTable(records []ShipmentRecord) (header []string, rows [][]string) {
	withCO2 := false
	for _, r := range records {
		if r.CO2 != "" {
			withCO2 = true
			break
		}
	}

	header = []string{ColContainerNo, ColCarrier, ColSystemETA, ColLiveETA}
	if withCO2 {
		header = append(header, ColCO2)
	}
	header = append(header, ColStatus, ColSummary, ColETAChanged)

	rows = make([][]string, 0, len(records))
	for _, r := range records {
		row := []string{r.TrackingNumber, r.Carrier, r.SystemETA, r.LiveETA}
		if withCO2 {
			row = append(row, firstNonEmpty(r.CO2, NotAvailable))
		}
		changed := "NO"
		if r.ETAChanged {
			changed = "YES"
		}
		row = append(row, r.Status, r.Summary, changed)
		rows = append(rows, row)
	}
	return header, rows
}

// EncodeExport serializes records in the given format. Either every record
// is encoded or an *ExportError is returned.
func EncodeExport(records []ShipmentRecord, format ExportFormat) ([]byte, error) {
	header, rows := ExportTable(records)

	var (
		data []byte
		err  error
	)
	switch format {
	case ExportCSV:
		data, err = encodeCSV(header, rows)
	case ExportXLSX:
		data, err = encodeXLSX(header, rows)
	default:
		err = fmt.Errorf("%w: export format %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, &ExportError{Format: format, Err: err}
	}
	return data, nil
}

// Export encodes records and writes them to w in a single write, so nothing
// partial is written when encoding fails.
func Export(w io.Writer, records []ShipmentRecord, format ExportFormat) error {
	data, err := EncodeExport(records, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return &ExportError{Format: format, Err: err}
	}
	return nil
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeXLSX(header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	if err := setRow(f, 1, header); err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(ExportSheetName, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, row := range rows {
		if err := setRow(f, i+2, row); err != nil {
			return nil, err
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return nil, err
	}
	if err := f.SetColWidth(ExportSheetName, "A", last, 18); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(ExportSheetName, cell, &vals); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}
