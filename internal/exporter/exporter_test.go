package exporter

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTable() Table {
	return Table{
		Headers: []string{"Date", "Name", "Population", "All Cases"},
		Rows: [][]string{
			{"2023-01-01", "Gasabo", "530000", "1200"},
			{"2023-01-01", "Nyagatare", "465000", "2100"},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleTable()))

	raw := buf.Bytes()
	require.True(t, bytes.HasPrefix(raw, utf8BOM))

	records, err := csv.NewReader(bytes.NewReader(raw[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Name", "Population", "All Cases"}, records[0])
	assert.Equal(t, "Nyagatare", records[2][1])
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, sampleTable(), "Malaria Data"))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Malaria Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Gasabo", rows[1][1])
	assert.Equal(t, "2100", rows[2][3])
}
