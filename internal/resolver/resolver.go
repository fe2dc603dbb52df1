// Package resolver maps tour codes to program codes by scanning the
// portal's program listing. Lookups are cached by prefix for the lifetime
// of the resolver, so a batch of departures from one program costs a
// single listing fetch.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/logging"

	"github.com/PuerkitoBio/goquery"
)

// ErrNotFound means the listing shows no program code for the tour code.
// It is a per-entry failure; callers record it and continue the batch.
var ErrNotFound = errors.New("no program code found")

// nightsRe splits a tour code at its nights marker, e.g. "2UCKG4N..."
// is program prefix "2UCKG" plus a 4-night departure suffix.
var nightsRe = regexp.MustCompile(`^([A-Z0-9]+?)(\d+N)`)

// Prefix derives the cache key for a tour code: the leading run before
// the nights marker, or the first five characters when the code does not
// carry one. Short or atypical codes fall back to the whole code.
func Prefix(tourCode string) string {
	if m := nightsRe.FindStringSubmatch(tourCode); m != nil {
		return m[1]
	}
	if len(tourCode) > 5 {
		return tourCode[:5]
	}
	return tourCode
}

// Resolver resolves program codes against the portal listing through a
// driver, caching results by prefix.
type Resolver struct {
	cfg config.Config
	drv driver.Driver

	mu    sync.RWMutex
	cache map[string]string
}

// New returns a Resolver with an empty cache.
func New(cfg config.Config, drv driver.Driver) *Resolver {
	return &Resolver{cfg: cfg, drv: drv, cache: make(map[string]string)}
}

// Resolve returns the program code for tourCode. Codes sharing a prefix
// reuse the cached answer without touching the portal.
func (r *Resolver) Resolve(ctx context.Context, tourCode string) (string, error) {
	prefix := Prefix(tourCode)

	r.mu.RLock()
	code, ok := r.cache[prefix]
	r.mu.RUnlock()
	if ok {
		logging.ResolverDebug("cache hit: %s -> %s", prefix, code)
		return code, nil
	}

	timer := logging.StartTimer(logging.CategoryResolver, "resolve")
	defer timer.Stop()

	logging.Resolver("searching program code for %s (prefix %s)", tourCode, prefix)
	if err := r.drv.Navigate(ctx, r.cfg.Portal.PackagesURL()); err != nil {
		return "", fmt.Errorf("open program listing: %w", err)
	}
	driver.Settle(ctx, r.cfg.Browser.SettleDelay())

	// Some listing variants have no search box; the unfiltered first page
	// still carries the recent programs, so only narrow when we can.
	err := r.drv.SetValue(ctx, driver.FieldSearchBox, tourCode)
	switch {
	case err == nil:
		if err := r.drv.Click(ctx, driver.FieldSearchGo); err != nil {
			logging.ResolverWarn("search submit: %v", err)
		}
		driver.Settle(ctx, r.cfg.Browser.SettleDelay())
	case errors.Is(err, driver.ErrElementNotFound):
		logging.ResolverDebug("no search box, scanning unfiltered listing")
	default:
		return "", fmt.Errorf("fill search box: %w", err)
	}

	html, err := r.drv.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read listing: %w", err)
	}

	code = scan(html, prefix, tourCode)
	if code == "" {
		logging.ResolverWarn("no program code for %s (prefix %s)", tourCode, prefix)
		return "", fmt.Errorf("%w: %s", ErrNotFound, tourCode)
	}

	r.mu.Lock()
	r.cache[prefix] = code
	r.mu.Unlock()

	logging.Resolver("resolved %s -> %s", tourCode, code)
	return code, nil
}

// scan hunts for a program code in the listing markup. Strict shape
// first, then a looser one, then table rows that mention the code.
func scan(html, prefix, tourCode string) string {
	quoted := regexp.QuoteMeta(prefix)

	strict := regexp.MustCompile(quoted + `-[A-Z]{2}\d{3}`)
	if m := strict.FindString(html); m != "" {
		return m
	}

	loose := regexp.MustCompile(quoted + `-[A-Z]{2,4}\d*`)
	if m := loose.FindString(html); m != "" {
		return m
	}

	return scanRows(html, prefix, tourCode)
}

// scanRows pulls the first program-code-shaped token out of listing rows
// whose text mentions the tour code or its prefix.
func scanRows(html, prefix, tourCode string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	codeRe := regexp.MustCompile(`[A-Z0-9]+-[A-Z]{2}\d{3}`)
	found := ""
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		text := row.Text()
		if !strings.Contains(text, tourCode) && !strings.Contains(text, prefix) {
			return true
		}
		if m := codeRe.FindString(text); m != "" {
			found = m
			return false
		}
		return true
	})
	return found
}
