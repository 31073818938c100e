package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Gradebook: Algebra",
		Headers: []string{"Student", "Quiz 1", "Course Grade"},
		Rows: []map[string]string{
			{"Student": "Ali Hassan", "Quiz 1": "8", "Course Grade": "80.00"},
			{"Student": "Mona Adel", "Quiz 1": "10", "Course Grade": "95.50"},
		},
		Totals: map[string]string{"Student": "Average", "Course Grade": "87.75"},
	}
}

func TestCSVExporterIncludesTotals(t *testing.T) {
	body, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	text := strings.TrimPrefix(string(body), "\ufeff")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Student,Quiz 1,Course Grade", lines[0])
	assert.Equal(t, "Average,,87.75", lines[3])
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"Title", "Amount"},
		Rows: []map[string]string{
			{"Title": "=HYPERLINK(\"http://x\")", "Amount": "-12.50"},
			{"Title": "@refund", "Amount": "+3"},
		},
	}
	body, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(body), "\ufeff")), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"'=HYPERLINK(""http://x"")",-12.50`, lines[1])
	assert.Equal(t, "'@refund,+3", lines[2])
}

func TestXLSXExporterWritesNumbers(t *testing.T) {
	body, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	file, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	sheet := file.GetSheetName(0)
	assert.Equal(t, "Gradebook- Algebra", sheet)
	header, err := file.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)
	grade, err := file.GetCellValue(sheet, "C3")
	require.NoError(t, err)
	assert.Equal(t, "95.5", grade)
}

func TestRegistryRejectsUnknownFormat(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Render(Format("docx"), sampleDataset())
	require.Error(t, err)

	body, contentType, err := reg.Render(FormatPDF, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestRenderersRequireHeaders(t *testing.T) {
	for _, format := range []Format{FormatCSV, FormatPDF, FormatXLSX} {
		_, _, err := NewRegistry().Render(format, Dataset{})
		assert.Error(t, err, string(format))
	}
}
