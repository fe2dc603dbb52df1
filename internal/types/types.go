// Package types provides shared type definitions used across tourcharge packages.
// This package exists to break import cycles between the resolver, form, batch,
// store, and server layers. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Entry is one expense to be created: a tour departure, its passenger count,
// and the amount to claim. Entries are immutable and consumed exactly once.
type Entry struct {
	TourCode string  `json:"tour_code"`
	Pax      int     `json:"pax"`
	Amount   float64 `json:"amount"`

	// Description overrides the configured default when non-empty.
	Description string `json:"description,omitempty"`
}

// Validate reports whether the entry is well formed enough to process.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.TourCode) == "" {
		return fmt.Errorf("entry: empty tour code")
	}
	if e.Pax <= 0 {
		return fmt.Errorf("entry %s: pax must be positive, got %d", e.TourCode, e.Pax)
	}
	if e.Amount <= 0 {
		return fmt.Errorf("entry %s: amount must be positive, got %v", e.TourCode, e.Amount)
	}
	return nil
}

// Status is the terminal state of one processed entry.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Result records the outcome of processing a single entry.
type Result struct {
	Entry
	ProgramCode    string    `json:"program_code"`
	Status         Status    `json:"status"`
	ConfirmationID string    `json:"expense_no,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Succeeded reports whether the entry was submitted.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// BatchResult aggregates per-entry results in source order.
type BatchResult struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Append records one more result, preserving source order.
func (b *BatchResult) Append(r Result) {
	b.Results = append(b.Results, r)
}

// Total returns the number of entries attempted.
func (b *BatchResult) Total() int { return len(b.Results) }

// Succeeded returns the number of successful entries.
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed entries.
func (b *BatchResult) Failed() int { return b.Total() - b.Succeeded() }

// Summary renders the counts in the one-line form used by logs and the CLI.
func (b *BatchResult) Summary() string {
	return fmt.Sprintf("%d/%d successful", b.Succeeded(), b.Total())
}

// TruncateReason shortens a failure reason for result records. Reasons come
// from wrapped driver errors and can carry whole JS stack traces. The cut
// backs up to a rune boundary so Thai option labels survive intact.
func TruncateReason(reason string, max int) string {
	reason = strings.TrimSpace(reason)
	if max <= 0 || len(reason) <= max {
		return reason
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
