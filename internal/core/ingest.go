package core

import (
	"log/slog"
)

// Ingester runs the decode → header → normalize → canonicalize pipeline.
type Ingester struct {
	normalizer       *Normalizer
	headerSearchRows int
	logger           *slog.Logger
}

// IngestOption configures an Ingester.
type IngestOption func(*Ingester)

// WithHeaderSearchRows overrides how many leading rows are scanned for a header.
func WithHeaderSearchRows(n int) IngestOption {
	return func(i *Ingester) {
		if n > 0 {
			i.headerSearchRows = n
		}
	}
}

// WithIngestLogger sets the logger used for pipeline diagnostics.
func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(i *Ingester) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIngester creates an Ingester using the given normalizer.
func NewIngester(n *Normalizer, opts ...IngestOption) *Ingester {
	i := &Ingester{
		normalizer:       n,
		headerSearchRows: DefaultHeaderSearchRows,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestResult holds the admitted records of one manifest. Records have no
// ids until they are loaded into a Collection.
type IngestResult struct {
	Records     []ShipmentRecord `json:"-"`
	Mode        string           `json:"matchMode"`
	HeaderRow   int              `json:"headerRow"`
	HeaderFound bool             `json:"headerFound"`
	RowsRead    int              `json:"rowsRead"`
	Dropped     int              `json:"dropped"`
	Collisions  []Collision      `json:"collisions,omitempty"`
}

// IngestFile decodes a spreadsheet or delimited file.
func (i *Ingester) IngestFile(name string, data []byte) (*IngestResult, error) {
	grid, err := DecodeGrid(name, data)
	if err != nil {
		i.logger.Error("manifest decode failed", "file", name, "error", err)
		return nil, err
	}

	headerRow, found := LocateHeader(grid, i.headerSearchRows)
	rows, err := RowsFromGrid(grid, headerRow)
	if err != nil {
		return nil, &DecodeError{Source: name, Err: err}
	}

	result := i.admit(rows)
	result.HeaderRow = headerRow
	result.HeaderFound = found

	i.logger.Debug("manifest ingested",
		"file", name,
		"header_row", headerRow,
		"header_found", found,
		"rows", result.RowsRead,
		"admitted", len(result.Records),
		"dropped", result.Dropped,
	)
	return result, nil
}

// IngestText decodes pasted delimited text. The first line is the header.
func (i *Ingester) IngestText(text string) (*IngestResult, error) {
	rows, err := DecodeText(text)
	if err != nil {
		i.logger.Error("pasted manifest decode failed", "error", err)
		return nil, err
	}

	result := i.admit(rows)
	result.HeaderFound = true

	i.logger.Debug("pasted manifest ingested",
		"rows", result.RowsRead,
		"admitted", len(result.Records),
		"dropped", result.Dropped,
	)
	return result, nil
}

func (i *Ingester) admit(rows []RawRow) *IngestResult {
	result := &IngestResult{
		Mode:     i.normalizer.Mode(),
		RowsRead: len(rows),
		Records:  make([]ShipmentRecord, 0, len(rows)),
	}

	seen := make(map[Collision]bool)
	for _, raw := range rows {
		norm := i.normalizer.Normalize(raw)
		for _, c := range norm.Collisions {
			if !seen[c] {
				seen[c] = true
				result.Collisions = append(result.Collisions, c)
				i.logger.Debug("header collision", "field", c.Field, "kept", c.Kept, "dropped", c.Dropped)
			}
		}

		rec, ok := Canonicalize(norm, raw)
		if !ok {
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result
}
