// Package sheet reads and writes payroll datasets as CSV, XLS and XLSX.
package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"payslip/internal/domain/payroll"
)

const (
	FormatCSV  = "csv"
	FormatXLS  = "xls"
	FormatXLSX = "xlsx"

	DefaultSheet = "Payroll"
	maxXLSRows   = 100000

	// OutputFileName is the base name of a processed dataset.
	OutputFileName = "employee_payslip_with_paye"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrEmpty             = errors.New("spreadsheet is empty")
)

// FormatOf maps a file name to one of the supported formats.
func FormatOf(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xls":
		return FormatXLS, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Read parses the first worksheet of r. The first row is the header.
func Read(name string, r io.Reader) (payroll.Table, error) {
	format, err := FormatOf(name)
	if err != nil {
		return payroll.Table{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return payroll.Table{}, err
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = readCSV(data)
	case FormatXLS:
		rows, err = readXLS(data)
	default:
		rows, err = readXLSX(data)
	}
	if err != nil {
		return payroll.Table{}, fmt.Errorf("read %s: %w", name, err)
	}
	return toTable(rows)
}

func ReadFile(path string) (payroll.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return payroll.Table{}, err
	}
	defer f.Close()
	return Read(filepath.Base(path), f)
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}

func readXLS(data []byte) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if workbook.NumSheets() == 0 {
		return nil, errors.New("no worksheet found")
	}
	ws := workbook.GetSheet(0)
	if ws == nil {
		return nil, errors.New("no worksheet found")
	}
	var rows [][]string
	for i := 0; i <= int(ws.MaxRow) && i < maxXLSRows; i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("no worksheet found")
	}
	return file.GetRows(sheetName)
}

func toTable(rows [][]string) (payroll.Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return payroll.Table{}, ErrEmpty
	}
	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = strings.TrimSpace(col)
	}
	return payroll.Table{Columns: header, Rows: rows[1:]}, nil
}

// WriteXLSX writes t as a single worksheet with a bold header row.
func WriteXLSX(w io.Writer, t payroll.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		return err
	}
	if err := setRow(f, 1, t.Columns); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(DefaultSheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func setRow(f *excelize.File, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, v := range cells {
		values[i] = v
	}
	return f.SetSheetRow(DefaultSheet, cell, &values)
}

func WriteCSV(w io.Writer, t payroll.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Write picks the writer from the file extension of name.
func Write(name string, w io.Writer, t payroll.Table) error {
	format, err := FormatOf(name)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	default:
		return fmt.Errorf("%w: writing %s is not supported", ErrUnsupportedFormat, format)
	}
}

func WriteFile(path string, t payroll.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(filepath.Base(path), f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteRegister writes the per-employee payroll register as CSV.
func WriteRegister(w io.Writer, lines []payroll.RegisterLine) error {
	return gocsv.Marshal(lines, w)
}
