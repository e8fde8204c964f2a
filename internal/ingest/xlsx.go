// Package ingest parses operator-supplied plot spreadsheets for bulk import.
// Rows enter the durable cache through the same normalization rules as live
// source data.
package ingest

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/plotwise/landmatch/internal/areas"
	"github.com/plotwise/landmatch/internal/model"
)

// Recognized header names, matched case-insensitively after trimming.
const (
	colLandNumber = "land_number"
	colArea       = "area"
	colLatitude   = "latitude"
	colLongitude  = "longitude"
	colLandStatus = "land_status"
)

// Options configures spreadsheet parsing.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ParsePlots reads an XLSX file of plots. The first row must be a header
// containing at least land_number, latitude, and longitude; unrecognized
// columns are carried through as record attributes. Rows that cannot be
// parsed are skipped, not fatal; the skip count is returned alongside the
// records.
func ParsePlots(path string, tbl *areas.Table, opts Options) ([]model.PlotRecord, int, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, 0, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, 0, err
	}
	if len(sheet.Rows) < 2 {
		return nil, 0, eris.New("ingest: sheet has no data rows")
	}

	header := make([]string, 0, len(sheet.Rows[0].Cells))
	for _, cell := range sheet.Rows[0].Cells {
		header = append(header, strings.ToLower(strings.TrimSpace(cell.String())))
	}
	if !contains(header, colLandNumber) || !contains(header, colLatitude) || !contains(header, colLongitude) {
		return nil, 0, eris.New("ingest: header must contain land_number, latitude, and longitude")
	}

	var records []model.PlotRecord
	skipped := 0
	for i, row := range sheet.Rows[1:] {
		rec, err := parseRow(header, row, tbl)
		if err != nil {
			zap.L().Warn("skipping unparseable row",
				zap.Int("row", i+2),
				zap.Error(err))
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range", opts.SheetIndex)
	}
	return f.Sheets[opts.SheetIndex], nil
}

func parseRow(header []string, row *xlsx.Row, tbl *areas.Table) (model.PlotRecord, error) {
	rec := model.PlotRecord{
		SourceKind:      model.SourceAuthoritative,
		ConfidenceScore: model.ConfidenceAuthoritative,
	}
	var haveLat, haveLon bool

	for i, cell := range row.Cells {
		if i >= len(header) {
			break
		}
		value := strings.TrimSpace(cell.String())
		if value == "" {
			continue
		}
		switch header[i] {
		case colLandNumber:
			rec.LandNumber = value
		case colArea:
			rec.Area = tbl.Canonical(value)
		case colLatitude:
			lat, err := strconv.ParseFloat(value, 64)
			if err != nil || lat < -90 || lat > 90 {
				return rec, eris.Errorf("ingest: bad latitude %q", value)
			}
			rec.Latitude = lat
			haveLat = true
		case colLongitude:
			lon, err := strconv.ParseFloat(value, 64)
			if err != nil || lon < -180 || lon > 180 {
				return rec, eris.Errorf("ingest: bad longitude %q", value)
			}
			rec.Longitude = lon
			haveLon = true
		case colLandStatus:
			rec.LandStatus = value
		default:
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]any)
			}
			rec.Attributes[header[i]] = value
		}
	}

	if model.NormalizeLandNumber(rec.LandNumber) == "" {
		return rec, eris.New("ingest: missing land number")
	}
	if !haveLat || !haveLon {
		return rec, eris.New("ingest: missing coordinates")
	}
	rec.PlotID = model.NewPlotID(rec.SourceKind, rec.LandNumber)
	return rec, nil
}

func contains(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
