package core

// decode.go turns raw manifest input into rows.
//
// Two independent paths exist:
//   - Grid mode: spreadsheet bytes (or a delimited file) decode to a grid of
//     cells; the caller locates the header row and builds RawRows from it.
//   - Text mode: pasted text, where the first non-empty line is always the header.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Grid is a decoded sheet: rows of cells, not necessarily rectangular.
type Grid [][]Cell

// Format identifies how manifest bytes are decoded.
type Format string

const (
	FormatXLSX      Format = "xlsx"
	FormatDelimited Format = "delimited"
)

// emptyHeaderKey names columns whose header cell is blank.
const emptyHeaderKey = "__EMPTY"

// maxNumericDigits is the longest digit run that is still read as a number.
// Longer values are identifiers that would lose precision as float64.
const maxNumericDigits = 15

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// DetectFormat picks a decoder from the file extension, falling back to
// content sniffing when the extension is missing or unknown.
func DetectFormat(name string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX, nil
	case ".csv", ".tsv", ".txt":
		return FormatDelimited, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls workbooks must be saved as .xlsx", ErrUnsupportedFormat)
	}

	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX, nil
	case bytes.HasPrefix(data, oleMagic):
		return "", fmt.Errorf("%w: legacy binary workbook", ErrUnsupportedFormat)
	case utf8.Valid(bytes.TrimPrefix(data, utf8BOM)):
		return FormatDelimited, nil
	}
	return "", ErrUnsupportedFormat
}

// DecodeGrid decodes the first sheet of a workbook, or a delimited text file,
// into a grid. Leading blank rows are dropped so row 0 is the first used row.
func DecodeGrid(name string, data []byte) (Grid, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Source: name, Err: ErrEmptyInput}
	}

	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}

	var grid Grid
	switch format {
	case FormatXLSX:
		grid, err = decodeWorkbook(data)
	default:
		grid, err = decodeDelimited(name, data)
	}
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}

	grid = trimLeadingBlankRows(grid)
	if len(grid) == 0 {
		return nil, &DecodeError{Source: name, Err: ErrEmptyInput}
	}
	return grid, nil
}

// decodeWorkbook reads the first sheet of an OOXML workbook.
// Numeric cells keep their raw value so date serials survive.
func decodeWorkbook(data []byte) (Grid, error) {
	opts := excelize.Options{RawCellValue: true}
	f, err := excelize.OpenReader(bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, opts)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	grid := make(Grid, len(rows))
	for r, row := range rows {
		cells := make([]Cell, len(row))
		for c, value := range row {
			cells[c] = workbookCell(f, sheet, c, r, value)
		}
		grid[r] = cells
	}
	return grid, nil
}

// workbookCell types a raw cell value. Only cells stored as numbers become
// numeric; text cells that look like numbers stay text.
func workbookCell(f *excelize.File, sheet string, col, row int, value string) Cell {
	if value == "" {
		return Cell{}
	}
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return TextCell(value)
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return TextCell(value)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if n, ok := ParseNumber(value); ok {
			return Cell{Text: value, Num: n, IsNum: true}
		}
	}
	return TextCell(value)
}

// decodeDelimited reads a CSV/TSV file into a grid, inferring numbers the
// way spreadsheet applications do when opening delimited files.
func decodeDelimited(name string, data []byte) (Grid, error) {
	text := cleanText(data)

	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = fileSeparator(name, string(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var grid Grid
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		cells := make([]Cell, len(record))
		for i, v := range record {
			cells[i] = inferCell(v)
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

// inferCell returns a numeric cell for plain numbers, keeping values with
// leading zeros or too many digits as text so identifiers survive intact.
func inferCell(v string) Cell {
	s := strings.TrimSpace(v)
	if s == "" {
		return Cell{}
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > maxNumericDigits {
		return TextCell(v)
	}
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return TextCell(v)
	}
	if n, ok := ParseNumber(s); ok {
		return Cell{Text: s, Num: n, IsNum: true}
	}
	return TextCell(v)
}

// RowsFromGrid builds RawRows from the rows below headerRow, keyed by the
// header row's labels. Empty cells are omitted and rows with no values are
// skipped.
func RowsFromGrid(grid Grid, headerRow int) ([]RawRow, error) {
	if headerRow < 0 || headerRow >= len(grid) {
		return nil, ErrNoHeader
	}

	width := 0
	for _, row := range grid[headerRow:] {
		width = max(width, len(row))
	}

	labels := make([]string, len(grid[headerRow]))
	for i, c := range grid[headerRow] {
		labels[i] = c.String()
	}
	keys := headerKeys(labels, width)

	var rows []RawRow
	for _, row := range grid[headerRow+1:] {
		var raw RawRow
		for i, cell := range row {
			if cell.IsEmpty() {
				continue
			}
			raw = append(raw, Field{Key: keys[i], Value: cell})
		}
		if len(raw) > 0 {
			rows = append(rows, raw)
		}
	}
	return rows, nil
}

// DecodeText decodes pasted delimited text. The separator is tab when the
// text contains one, else comma, else tab. The first non-empty line is the
// header; missing trailing fields become empty strings.
func DecodeText(text string) ([]RawRow, error) {
	text = string(cleanText([]byte(text)))
	sep := string(detectSeparator(text))

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, &DecodeError{Source: "paste", Err: ErrEmptyInput}
	}

	header := splitTrimmed(lines[0], sep)
	keys := headerKeys(header, len(header))

	rows := make([]RawRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := splitTrimmed(line, sep)
		if isEmptyRow(values) {
			continue
		}
		raw := make(RawRow, len(keys))
		for i, key := range keys {
			v := ""
			if i < len(values) {
				v = values[i]
			}
			raw[i] = Field{Key: key, Value: TextCell(v)}
		}
		rows = append(rows, raw)
	}
	return rows, nil
}

// headerKeys names columns from header labels. Blank labels become __EMPTY,
// __EMPTY_1, ...; repeated labels get a _N suffix.
func headerKeys(labels []string, width int) []string {
	keys := make([]string, max(width, len(labels)))
	seen := make(map[string]int, len(keys))
	for i := range keys {
		base := ""
		if i < len(labels) {
			base = labels[i]
		}
		if strings.TrimSpace(base) == "" {
			base = emptyHeaderKey
		}
		key := base
		if n := seen[base]; n > 0 {
			key = fmt.Sprintf("%s_%d", base, n)
		}
		seen[base]++
		keys[i] = key
	}
	return keys
}

// detectSeparator prefers tab, then comma, defaulting to tab.
func detectSeparator(text string) rune {
	if strings.Contains(text, "\t") {
		return '\t'
	}
	if strings.Contains(text, ",") {
		return ','
	}
	return '\t'
}

// fileSeparator picks the separator of a delimited file from its extension,
// then from its first non-empty line. Tabs inside later cells of a .csv
// never change the separator.
func fileSeparator(name, text string) rune {
	first := firstLine(text)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tsv":
		return '\t'
	case ".csv":
		if strings.Contains(first, "\t") && !strings.Contains(first, ",") {
			return '\t'
		}
		return ','
	}
	return detectSeparator(first)
}

// firstLine returns the first line of text that is not blank.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

func splitTrimmed(line, sep string) []string {
	parts := strings.Split(line, sep)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimLeadingBlankRows(grid Grid) Grid {
	for len(grid) > 0 {
		blank := true
		for _, c := range grid[0] {
			if !c.IsEmpty() {
				blank = false
				break
			}
		}
		if !blank {
			break
		}
		grid = grid[1:]
	}
	return grid
}

// cleanText strips a UTF-8 BOM and replaces invalid UTF-8 sequences with
// U+FFFD. Windows exports commonly carry both.
func cleanText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// ReadLimited reads at most limit bytes from r, returning ErrFileTooLarge
// when more remain.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}
