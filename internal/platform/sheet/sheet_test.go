package sheet

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payslip/internal/domain/payroll"
)

func sample() payroll.Table {
	return payroll.Table{
		Columns: []string{"Name", "Basic Salary", "Allowances", "Deductions"},
		Rows: [][]string{
			{"Ama", "1000", "200", "50"},
			{"Kofi", "2500", "", "10"},
		},
	}
}

func TestFormatOf(t *testing.T) {
	for name, want := range map[string]string{
		"a.csv":  FormatCSV,
		"A.XLSX": FormatXLSX,
		"b.xls":  FormatXLS,
	} {
		got, err := FormatOf(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := FormatOf("payroll.ods")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadCSV(t *testing.T) {
	body := "\xef\xbb\xbfName, Basic Salary,Allowances,Deductions\nAma,\"1,000\",200,50\nKofi,2500\n"
	table, err := Read("input.csv", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Basic Salary", "Allowances", "Deductions"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1,000", table.Rows[0][1])
	assert.Len(t, table.Rows[1], 2)
}

func TestReadEmpty(t *testing.T) {
	_, err := Read("input.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample()))

	table, err := Read("out.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, sample().Columns, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Ama", table.Rows[0][0])
	assert.Equal(t, "50", table.Rows[0][3])
	assert.Equal(t, "10", table.Rows[1][3])
}

func TestWriteFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, sample()))

	table, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), table)
}

func TestWriteRejectsXLS(t *testing.T) {
	var buf bytes.Buffer
	err := Write("out.xls", &buf, sample())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestWriteRegister(t *testing.T) {
	var buf bytes.Buffer
	err := WriteRegister(&buf, []payroll.RegisterLine{{Line: 2, Name: "Ama", NetPay: "994.80"}})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Line,Name,Role,Month,Year,Basic Salary"))
	assert.Contains(t, lines[1], "994.80")
}
