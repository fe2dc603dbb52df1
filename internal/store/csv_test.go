package store

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tourcharge/internal/types"

	"github.com/stretchr/testify/require"
)

func writeEntriesCSV(t *testing.T, body string, withBOM bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entries.csv")
	data := []byte(body)
	if withBOM {
		data = append(append([]byte{}, utf8BOM...), data...)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestReadEntries(t *testing.T) {
	body := "รหัสทัวร์,จำนวนลูกค้า หัก หนท.,ยอดเบิก\n" +
		"2UCKG4NCKGFD251206, 10 , 500\n" +
		",,\n" + // Excel pads exports with blank rows
		"2UCKG4NCKGFD251213,8,1250.5\n"
	path := writeEntriesCSV(t, body, true)

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Equal(t, []types.Entry{
		{TourCode: "2UCKG4NCKGFD251206", Pax: 10, Amount: 500},
		{TourCode: "2UCKG4NCKGFD251213", Pax: 8, Amount: 1250.5},
	}, entries)
}

func TestReadEntriesWithoutBOM(t *testing.T) {
	body := "รหัสทัวร์,จำนวนลูกค้า หัก หนท.,ยอดเบิก\nABC123,2,99\n"
	path := writeEntriesCSV(t, body, false)

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "ABC123", entries[0].TourCode)
}

func TestReadEntriesExtraColumnsIgnored(t *testing.T) {
	body := "ลำดับ,รหัสทัวร์,จำนวนลูกค้า หัก หนท.,ยอดเบิก,หมายเหตุ\n" +
		"1,2UCKG4NCKGFD251206,10,500,บันทึก\n"
	path := writeEntriesCSV(t, body, true)

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 10, entries[0].Pax)
}

func TestReadEntriesMissingColumn(t *testing.T) {
	body := "รหัสทัวร์,ยอดเบิก\nABC123,99\n"
	path := writeEntriesCSV(t, body, false)

	_, err := ReadEntries(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), headerPax)
}

func TestReadEntriesBadNumber(t *testing.T) {
	body := "รหัสทัวร์,จำนวนลูกค้า หัก หนท.,ยอดเบิก\n" +
		"ABC123,2,99\n" +
		"DEF456,many,100\n"
	path := writeEntriesCSV(t, body, false)

	_, err := ReadEntries(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "row 3")
	require.Contains(t, err.Error(), "pax")
}

func TestResultsCSVEmit(t *testing.T) {
	dir := t.TempDir()
	sink := NewResultsCSV(dir)
	sink.now = func() time.Time { return time.Date(2025, 12, 6, 14, 30, 5, 0, time.UTC) }

	run := sampleRun("run-1", time.Date(2025, 12, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, sink.Emit(run))

	wantPath := filepath.Join(dir, "expense_results_20251206_143005.csv")
	require.Equal(t, wantPath, sink.LastPath())

	data, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "results file must carry a BOM for Excel")

	r := csv.NewReader(bytes.NewReader(data[len(utf8BOM):]))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + two results

	require.Equal(t, []string{"tour_code", "program_code", "pax", "amount", "status", "expense_no", "reason", "timestamp"}, records[0])
	require.Equal(t, "2UCKG4NCKGFD251206", records[1][0])
	require.Equal(t, "C251206-000123", records[1][5])
	require.Equal(t, "FAILED", records[2][4])
	require.Equal(t, "No program code found", records[2][6])
}
