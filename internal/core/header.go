package core

import "strings"

// DefaultHeaderSearchRows is how many leading rows are scanned for a header.
const DefaultHeaderSearchRows = 20

// headerMarkers must all appear in a row's text for it to count as the header.
var headerMarkers = []string{"container", "shipping"}

// LocateHeader returns the index of the header row within the first maxRows
// rows of grid. A row qualifies when its lower-cased cell text contains every
// header marker; the first qualifying row wins. When none qualifies, row 0 is
// returned with found=false.
func LocateHeader(grid Grid, maxRows int) (index int, found bool) {
	if maxRows <= 0 {
		maxRows = DefaultHeaderSearchRows
	}
	limit := min(maxRows, len(grid))

	for i := 0; i < limit; i++ {
		if isHeaderRow(grid[i]) {
			return i, true
		}
	}
	return 0, false
}

func isHeaderRow(row []Cell) bool {
	parts := make([]string, 0, len(row))
	for _, c := range row {
		parts = append(parts, c.String())
	}
	text := strings.ToLower(strings.Join(parts, " "))

	for _, m := range headerMarkers {
		if !strings.Contains(text, m) {
			return false
		}
	}
	return true
}
