package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/xuri/excelize/v2"

	"scoretrack/pkg/tableapi"
)

// Materialize renders t in the given format. title is used by formats that
// carry one (HTML page title, XLSX sheet name).
func Materialize(format tableapi.Format, title string, t tableapi.Table) ([]byte, error) {
	switch format {
	case tableapi.FormatCSV:
		return buildCSV(t)
	case tableapi.FormatJSON:
		return json.Marshal(t.Sanitized())
	case tableapi.FormatHTML:
		return buildHTML(title, t), nil
	case tableapi.FormatXLSX:
		return buildXLSX(title, t)
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func buildCSV(t tableapi.Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(t.Names()); err != nil {
		return nil, err
	}
	record := make([]string, len(t.Schema))
	for _, row := range t.Rows {
		for i, column := range t.Schema {
			record[i] = tableapi.FormatValue(row[column.Name])
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildHTML(title string, t tableapi.Table) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(title))
	buf.WriteString("</title></head><body><table>")
	buf.WriteString("<thead><tr>")
	for _, column := range t.Schema {
		buf.WriteString("<th>")
		buf.WriteString(html.EscapeString(column.Name))
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		buf.WriteString("<tr>")
		for _, column := range t.Schema {
			buf.WriteString("<td>")
			buf.WriteString(html.EscapeString(tableapi.FormatValue(row[column.Name])))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

// sheetName trims a title to the 31 characters a worksheet name allows.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, title)
	if name == "" {
		name = "table"
	}
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func buildXLSX(title string, t tableapi.Table) ([]byte, error) {
	f := excelize.NewFile()
	sheet := sheetName(title)
	index, err := f.NewSheet(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	for col, column := range t.Schema {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, column.Name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("header style %s: %w", cell, err)
		}
	}
	for r, row := range t.Rows {
		for c, column := range t.Schema {
			value := xlsxValue(row[column.Name])
			if value == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xlsxValue keeps numbers numeric and renders dates as text; missing and NaN
// cells are left empty.
func xlsxValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case int, int64:
		return val
	default:
		return tableapi.FormatValue(val)
	}
}
