// Package export builds the certification access workbook reviewers download.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/metrics"
)

const (
	DefaultRowLimit = 3000
	sheetName       = "Access"

	minColumnWidth = 10
	maxColumnWidth = 50

	commentColumn = "comment"
	skipComment   = "NONE"
)

// ErrInvalidCertificationID is returned for ids that are not UUIDs.
var ErrInvalidCertificationID = errors.New("certification id must be a UUID")

var hiddenColumns = map[string]struct{}{
	"lineitemid":      {},
	"certificationid": {},
	"taskid":          {},
}

// Querier runs catalog queries. *keyforge.Client implements it.
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params ...any) (keyforge.QueryResult, error)
}

// Table is the export content before it is written to a workbook. Cells keep their decoded
// type so numbers and booleans land in the sheet as such; nil is an empty cell.
type Table struct {
	Headers []string
	Rows    [][]any
}

// Exporter loads a certification's access rows and renders them.
type Exporter struct {
	Querier  Querier
	RowLimit int
	Now      func() time.Time
}

func (e *Exporter) query(limit int) string {
	return fmt.Sprintf("select * from vw_download_cert_access_by_certid where certificationid = ?::uuid LIMIT %d", limit)
}

// Load queries the access view for certID and shapes it into a table.
func (e *Exporter) Load(ctx context.Context, certID string) (Table, error) {
	id, err := uuid.Parse(strings.TrimSpace(certID))
	if err != nil {
		return Table{}, fmt.Errorf("%w: %q", ErrInvalidCertificationID, certID)
	}
	limit := e.RowLimit
	if limit <= 0 {
		limit = DefaultRowLimit
	}
	res, err := e.Querier.ExecuteQuery(ctx, e.query(limit), id.String())
	if err != nil {
		return Table{}, fmt.Errorf("load export rows: %w", err)
	}
	return BuildTable(res), nil
}

// BuildTable drops identifier columns and rows commented NONE. Headers follow the order in
// which columns first appear.
func BuildTable(res keyforge.QueryResult) Table {
	var headers []string
	for _, c := range res.Columns() {
		if _, hidden := hiddenColumns[strings.ToLower(c)]; hidden {
			continue
		}
		headers = append(headers, c)
	}

	t := Table{Headers: headers}
	for _, row := range res.Rows() {
		if skipRow(row) {
			continue
		}
		cells := make([]any, len(headers))
		for i, h := range headers {
			cells[i] = cellValue(row[h])
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// cellValue converts a decoded query value into something excelize writes natively.
func cellValue(v any) any {
	switch v := v.(type) {
	case nil, string, bool:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func skipRow(row map[string]any) bool {
	for k, v := range row {
		if !strings.EqualFold(k, commentColumn) {
			continue
		}
		if s, ok := v.(string); ok && strings.EqualFold(strings.TrimSpace(s), skipComment) {
			return true
		}
	}
	return false
}

// Filename is the download name for certID on the given day.
func Filename(certID string, day time.Time) string {
	return fmt.Sprintf("certification-access-%s-%s.xlsx", certID, day.Format("2006-01-02"))
}

// Write renders t as a single-sheet workbook.
func Write(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		Border:    thinBorders(),
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: thinBorders()})
	if err != nil {
		return err
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := writeRow(f, 1, header, headerStyle); err != nil {
		return err
	}
	for r, row := range t.Rows {
		if err := writeRow(f, r+2, row, cellStyle); err != nil {
			return err
		}
		for i, v := range row {
			if v == nil {
				continue
			}
			if n := utf8.RuneCountInString(fmt.Sprint(v)); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, col, col, float64(columnWidth(w))); err != nil {
			return err
		}
	}
	if len(t.Headers) > 0 {
		if err := f.SetPanes(sheetName, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}
	}
	metrics.ExportRowsTotal.Add(float64(len(t.Rows)))
	return f.Write(w)
}

func columnWidth(chars int) int {
	w := chars + 2
	if w < minColumnWidth {
		return minColumnWidth
	}
	if w > maxColumnWidth {
		return maxColumnWidth
	}
	return w
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "right", "top", "bottom"}
	out := make([]excelize.Border, 0, len(sides))
	for _, s := range sides {
		out = append(out, excelize.Border{Type: s, Color: "000000", Style: 1})
	}
	return out
}

func writeRow(f *excelize.File, rowNum int, values []any, style int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

// Export loads and renders a certification's workbook, returning its filename.
func (e *Exporter) Export(ctx context.Context, w io.Writer, certID string) (string, error) {
	t, err := e.Load(ctx, certID)
	if err != nil {
		return "", err
	}
	if err := Write(w, t); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Filename(strings.TrimSpace(certID), now()), nil
}
