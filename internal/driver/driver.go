// Package driver provides browser automation for the back-office portal.
// The pipeline above it speaks only in logical fields; concrete page
// addressing lives in the Locator strategies, and the Chrome/CDP plumbing
// lives in RodDriver.
package driver

import (
	"context"
	"errors"
	"time"
)

// Driver errors. Callers match with errors.Is and map them to their own
// failure taxonomy.
var (
	ErrNotStarted      = errors.New("driver not started")
	ErrElementNotFound = errors.New("element not found")
	ErrOptionNotFound  = errors.New("option not found")
	ErrNoSubmitControl = errors.New("submit control not found")
)

// Selection reports what a dependent-select pick landed on. Label carries
// the option's full visible text, which the form reuses for the remark.
type Selection struct {
	Value string
	Label string
}

// Driver is the UI-automation capability the pipeline consumes. One driver
// owns one authenticated page context; it is not safe for concurrent use.
type Driver interface {
	// Start launches or attaches to a browser and opens the working page.
	// Idempotent while the underlying browser stays healthy.
	Start(ctx context.Context) error
	// Close releases the page and the browser. Safe to call repeatedly.
	Close() error

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// PageText returns the rendered text of the document body.
	PageText(ctx context.Context) (string, error)
	// HTML returns the full document markup.
	HTML(ctx context.Context) (string, error)

	// ReadValue returns the current value of a field.
	ReadValue(ctx context.Context, f Field) (string, error)
	// InputValues returns the values of every text input on the page, in
	// document order.
	InputValues(ctx context.Context) ([]string, error)
	// ConfirmationValues returns the values found at the known
	// confirmation-number locations, in probe order.
	ConfirmationValues(ctx context.Context) ([]string, error)

	// Type sends real keystrokes to a field.
	Type(ctx context.Context, f Field, text string) error
	// SetValue assigns a field value programmatically and fires the input
	// and change events so dependent listeners recompute.
	SetValue(ctx context.Context, f Field, value string) error
	// SelectByLabel picks the first option whose visible text contains
	// label and fires the select's change notification. Returns
	// ErrOptionNotFound when no option matches.
	SelectByLabel(ctx context.Context, f Field, label string) (Selection, error)
	// SelectByValue picks an option by its value attribute.
	SelectByValue(ctx context.Context, f Field, value string) error

	Click(ctx context.Context, f Field) error
	// ScrollAndClick scrolls the field into view before clicking.
	ScrollAndClick(ctx context.Context, f Field) error
	// SubmitForm tries the generic submit fallbacks in priority order and
	// reports which one fired. Returns ErrNoSubmitControl when the page
	// offers none.
	SubmitForm(ctx context.Context) (string, error)
}

// Settle pauses for page reactions to catch up, honoring cancellation.
// The portal repopulates its dependent selects asynchronously after range
// and program changes, so steps that trigger repopulation settle first.
func Settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
