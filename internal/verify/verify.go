// Package verify recovers the confirmation identifier the portal issues
// after a charge submission. The id surfaces inconsistently across result
// page variants, so extraction walks an ordered list of strategies and
// treats total absence as a reported gap, not a failure.
package verify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"tourcharge/internal/driver"
	"tourcharge/internal/logging"
)

// confirmationRe matches issued charge numbers, e.g. C251206-000123.
var confirmationRe = regexp.MustCompile(`C\d{6}-\d{6}`)

// manageIDRe pulls the trailing record id from a manage URL.
var manageIDRe = regexp.MustCompile(`/(\d+)$`)

// Extractor reads the post-submit page for a confirmation id.
type Extractor struct {
	drv driver.Driver
	now func() time.Time
}

// New returns an Extractor over drv.
func New(drv driver.Driver) *Extractor {
	return &Extractor{drv: drv, now: time.Now}
}

// Extract returns the confirmation id and true when any strategy finds
// one. Strategies run in trust order: known confirmation inputs, any
// text input, full page text, and finally the manage URL. Driver read
// errors skip to the next strategy; the submission itself already
// happened and must not be failed retroactively.
func (e *Extractor) Extract(ctx context.Context) (string, bool) {
	if vals, err := e.drv.ConfirmationValues(ctx); err == nil {
		for _, v := range vals {
			if m := confirmationRe.FindString(v); m != "" {
				logging.Verify("confirmation from known input: %s", m)
				return m, true
			}
		}
	} else {
		logging.VerifyDebug("confirmation inputs unreadable: %v", err)
	}

	if vals, err := e.drv.InputValues(ctx); err == nil {
		for _, v := range vals {
			if m := confirmationRe.FindString(v); m != "" {
				logging.Verify("confirmation from text input: %s", m)
				return m, true
			}
		}
	} else {
		logging.VerifyDebug("text inputs unreadable: %v", err)
	}

	if text, err := e.drv.PageText(ctx); err == nil {
		if m := confirmationRe.FindString(text); m != "" {
			logging.Verify("confirmation from page text: %s", m)
			return m, true
		}
	} else {
		logging.VerifyDebug("page text unreadable: %v", err)
	}

	// The manage URL carries the raw record id. The date half is
	// synthesized and assumes the record was issued today, so the result
	// is an approximation, flagged as such in the log.
	if url, err := e.drv.CurrentURL(ctx); err == nil && onManagePage(url) {
		if m := manageIDRe.FindStringSubmatch(url); m != nil {
			id := "C" + e.now().Format("060102") + "-" + m[1]
			logging.Verify("confirmation synthesized from url %s: %s", url, id)
			return id, true
		}
	}

	logging.VerifyDebug("no confirmation id found")
	return "", false
}

func onManagePage(url string) bool {
	return strings.Contains(url, "/charges_group/manage/") ||
		strings.Contains(url, "/charges/manage/")
}
