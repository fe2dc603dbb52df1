package store

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tourcharge/internal/logging"
	"tourcharge/internal/types"
)

// Entry CSV column headers, as the back office exports them.
const (
	headerTourCode = "รหัสทัวร์"
	headerPax      = "จำนวนลูกค้า หัก หนท."
	headerAmount   = "ยอดเบิก"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadEntries loads expense entries from an Excel-exported CSV. The file
// usually starts with a UTF-8 BOM and pads cells with whitespace; both
// are tolerated. Rows with an empty tour code are skipped.
func ReadEntries(path string) ([]types.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open entries csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, h := range []string{headerTourCode, headerPax, headerAmount} {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("entries csv %s: missing column %q", path, h)
		}
	}

	var entries []types.Entry
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entries csv: %w", err)
		}
		line++

		tourCode := strings.TrimSpace(rec[col[headerTourCode]])
		if tourCode == "" {
			continue
		}
		pax, err := strconv.Atoi(strings.TrimSpace(rec[col[headerPax]]))
		if err != nil {
			return nil, fmt.Errorf("entries csv row %d: pax: %w", line, err)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(rec[col[headerAmount]]), 64)
		if err != nil {
			return nil, fmt.Errorf("entries csv row %d: amount: %w", line, err)
		}

		entries = append(entries, types.Entry{TourCode: tourCode, Pax: pax, Amount: amount})
	}

	logging.Store("loaded %d entries from %s", len(entries), path)
	return entries, nil
}

// ResultsCSV writes one timestamped CSV per run into Dir. Files carry a
// UTF-8 BOM so Excel renders the Thai failure reasons.
type ResultsCSV struct {
	Dir string

	now      func() time.Time
	lastPath string
}

// NewResultsCSV returns a sink writing into dir.
func NewResultsCSV(dir string) *ResultsCSV {
	return &ResultsCSV{Dir: dir, now: time.Now}
}

// LastPath returns the path of the most recently written file.
func (s *ResultsCSV) LastPath() string { return s.lastPath }

// Emit writes the run's results as expense_results_<timestamp>.csv.
func (s *ResultsCSV) Emit(result *types.BatchResult) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}

	name := fmt.Sprintf("expense_results_%s.csv", s.now().Format("20060102_150405"))
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create results csv: %w", err)
	}
	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		return fmt.Errorf("write results csv: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write([]string{"tour_code", "program_code", "pax", "amount", "status", "expense_no", "reason", "timestamp"})
	for _, r := range result.Results {
		_ = w.Write([]string{
			r.TourCode,
			r.ProgramCode,
			strconv.Itoa(r.Pax),
			strconv.FormatFloat(r.Amount, 'f', -1, 64),
			string(r.Status),
			r.ConfirmationID,
			r.Reason,
			r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write results csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close results csv: %w", err)
	}

	s.lastPath = path
	logging.Store("results saved to %s", path)
	return nil
}
