package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/kitmanual/internal/catalog"
)

func exportRecords() []catalog.Record {
	release := time.Date(2024, 11, 8, 0, 0, 0, 0, time.UTC)
	return []catalog.Record{
		{
			ID:              1,
			PDFURL:          "https://manual.example.net/pdf/1.pdf",
			NameForeign:     catalog.StringPtr("MG Zaku II, Ver.2.0"),
			Grade:           catalog.StringPtr("MG"),
			ReleaseDate:     &release,
			ReleaseDateText: "2024年11月8日",
			LocalPath:       catalog.StringPtr("manuals/1-MG_Zaku_II_Ver.2.0.pdf"),
			UpdatedAt:       fixedNow,
		},
		{ID: 2, PDFURL: "https://manual.example.net/pdf/2.pdf", UpdatedAt: fixedNow},
	}
}

func TestNewExporterFormats(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewExporter("json, jsonl,csv", dir, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "multi", exp.Name())

	require.NoError(t, exp.Write(exportRecords()))
	require.NoError(t, exp.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "manuals.json"))
	require.NoError(t, err)
	var decoded []catalog.Record
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "MG", decoded[0].GradeCode())

	raw, err = os.ReadFile(filepath.Join(dir, "manuals.jsonl"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(raw)), "\n"), 2)

	f, err := os.Open(filepath.Join(dir, "manuals.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeaders, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "MG Zaku II, Ver.2.0", rows[1][3])
	assert.Equal(t, "2024-11-08", rows[1][4])
	assert.Equal(t, "", rows[2][1])
}

func TestNewExporterSingleAndUnknown(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewExporter("csv", dir, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "csv", exp.Name())
	require.NoError(t, exp.Close())

	_, err = NewExporter("xml", dir, testLogger)
	require.Error(t, err)
}
