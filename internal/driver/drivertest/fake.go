// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tourcharge/internal/driver"
)

// Fake is a scriptable stand-in for a browser-backed driver. Tests preset
// page content, select options, and redirects, then assert on what the
// code under test did to it. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	// Lifecycle.
	Started    bool
	StartErr   error
	Closed     bool
	CloseCalls int
	CloseErr   error

	// Navigation. Pages maps URL to served markup; both HTML and PageText
	// return it. ClickRedirects simulates navigation triggered by a click.
	URL            string
	NavErr         error
	NavCalls       []string
	Pages          map[string]string
	ClickRedirects map[driver.Field]string

	// Field state.
	Values  map[driver.Field]string
	Typed   map[driver.Field]string
	SetErrs map[driver.Field]error
	Missing map[driver.Field]bool

	// Select state.
	Options  map[driver.Field][]driver.Selection
	Selected map[driver.Field]driver.Selection

	// Click log.
	Clicked []driver.Field

	// Submit behavior.
	SubmitMethod string
	SubmitNavURL string

	// Confirmation surface.
	Confirmations []string
	TextInputs    []string
}

var _ driver.Driver = (*Fake)(nil)

// New returns a Fake with empty state maps.
func New() *Fake {
	return &Fake{
		Pages:          map[string]string{},
		ClickRedirects: map[driver.Field]string{},
		Values:         map[driver.Field]string{},
		Typed:          map[driver.Field]string{},
		SetErrs:        map[driver.Field]error{},
		Missing:        map[driver.Field]bool{},
		Options:        map[driver.Field][]driver.Selection{},
		Selected:       map[driver.Field]driver.Selection{},
	}
}

func (f *Fake) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.Started = true
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.CloseCalls++
	return f.CloseErr
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NavErr != nil {
		return f.NavErr
	}
	f.URL = url
	f.NavCalls = append(f.NavCalls, url)
	return nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *Fake) PageText(ctx context.Context) (string, error) {
	return f.HTML(ctx)
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pages[f.URL], nil
}

func (f *Fake) ReadValue(ctx context.Context, fd driver.Field) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[fd] {
		return "", fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	return f.Values[fd], nil
}

func (f *Fake) InputValues(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.TextInputs...), nil
}

func (f *Fake) ConfirmationValues(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Confirmations...), nil
}

func (f *Fake) Type(ctx context.Context, fd driver.Field, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[fd] {
		return fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	f.Typed[fd] = text
	f.Values[fd] = text
	return nil
}

func (f *Fake) SetValue(ctx context.Context, fd driver.Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SetErrs[fd]; err != nil {
		return err
	}
	if f.Missing[fd] {
		return fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	f.Values[fd] = value
	return nil
}

func (f *Fake) SelectByLabel(ctx context.Context, fd driver.Field, label string) (driver.Selection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[fd] {
		return driver.Selection{}, fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	for _, opt := range f.Options[fd] {
		if strings.Contains(opt.Label, label) {
			f.Values[fd] = opt.Value
			f.Selected[fd] = opt
			return opt, nil
		}
	}
	return driver.Selection{}, fmt.Errorf("%w: %q in %s", driver.ErrOptionNotFound, label, fd)
}

func (f *Fake) SelectByValue(ctx context.Context, fd driver.Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[fd] {
		return fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	for _, opt := range f.Options[fd] {
		if opt.Value == value {
			f.Values[fd] = opt.Value
			f.Selected[fd] = opt
			return nil
		}
	}
	return fmt.Errorf("%w: value %q in %s", driver.ErrOptionNotFound, value, fd)
}

func (f *Fake) Click(ctx context.Context, fd driver.Field) error {
	return f.click(fd)
}

func (f *Fake) ScrollAndClick(ctx context.Context, fd driver.Field) error {
	return f.click(fd)
}

func (f *Fake) click(fd driver.Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[fd] {
		return fmt.Errorf("%w: %s", driver.ErrElementNotFound, fd)
	}
	f.Clicked = append(f.Clicked, fd)
	if to, ok := f.ClickRedirects[fd]; ok {
		f.URL = to
	}
	return nil
}

func (f *Fake) SubmitForm(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitMethod == "" {
		return "", driver.ErrNoSubmitControl
	}
	if f.SubmitNavURL != "" {
		f.URL = f.SubmitNavURL
	}
	return f.SubmitMethod, nil
}

// ClickedField reports whether fd was clicked at least once.
func (f *Fake) ClickedField(fd driver.Field) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Clicked {
		if c == fd {
			return true
		}
	}
	return false
}

// NavCount returns how many times url was navigated to.
func (f *Fake) NavCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.NavCalls {
		if u == url {
			n++
		}
	}
	return n
}
