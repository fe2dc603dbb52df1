// Package packages reads the portal's travelpackage catalogue: the listing
// table, optionally narrowed by keyword, and the per-package edit page. It
// backs the packages CLI commands and the catalogue endpoints of the HTTP
// adapter; the charge pipeline itself never needs it.
package packages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/logging"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxPages bounds a listing walk when the caller does not.
const DefaultMaxPages = 10

// ErrNoSuchPackage means the edit page for the requested id carries no
// package data, which is how the portal renders unknown ids.
var ErrNoSuchPackage = errors.New("no such package")

// Package is one row of the travelpackage listing.
type Package struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Name     string `json:"name"`
	Format   string `json:"format,omitempty"`
	Category string `json:"category,omitempty"`
	Expiry   string `json:"expiry,omitempty"`
	Created  string `json:"created,omitempty"`
	Edited   string `json:"edited,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Detail is the content of one package's edit page.
type Detail struct {
	ID           string `json:"id"`
	ProgramCode  string `json:"program_code"`
	ProgramName  string `json:"program_name"`
	ShortDetail  string `json:"short_detail,omitempty"`
	NumSchedules string `json:"num_schedules,omitempty"`
	TourType     string `json:"tour_type,omitempty"`
	WebDisplay   string `json:"web_display,omitempty"`
	Country      string `json:"country,omitempty"`
	Province     string `json:"province,omitempty"`
	MainCity     string `json:"main_city,omitempty"`
}

// ListOptions narrows and bounds a listing walk.
type ListOptions struct {
	// Keyword, when set, is typed into the listing search box before any
	// rows are read.
	Keyword string
	// MaxPages caps pagination; zero or negative means DefaultMaxPages.
	MaxPages int
}

// Extractor walks the package catalogue over an authenticated driver.
// Callers own the session; the extractor only navigates and reads.
type Extractor struct {
	cfg config.Config
	drv driver.Driver
}

// New returns an Extractor over the given driver.
func New(cfg config.Config, drv driver.Driver) *Extractor {
	return &Extractor{cfg: cfg, drv: drv}
}

// List reads the listing page by page, following the Next link until it
// disappears, the page stops advancing, or the page cap is reached.
func (e *Extractor) List(ctx context.Context, opts ListOptions) ([]Package, error) {
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	timer := logging.StartTimer(logging.CategoryCatalog, "list")
	defer timer.Stop()

	if err := e.drv.Navigate(ctx, e.cfg.Portal.PackagesURL()); err != nil {
		return nil, fmt.Errorf("open package listing: %w", err)
	}
	e.settle(ctx)

	if opts.Keyword != "" {
		if err := e.search(ctx, opts.Keyword); err != nil {
			return nil, err
		}
	}

	var all []Package
	prev := ""
	for page := 1; page <= maxPages; page++ {
		html, err := e.drv.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("read listing page %d: %w", page, err)
		}
		// The Next link stays clickable on the last page; when the markup
		// stops changing the walk is done.
		if html == prev {
			break
		}
		prev = html

		rows, err := ParseListing(html, e.cfg.Portal.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse listing page %d: %w", page, err)
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
		logging.CatalogDebug("page %d: %d packages", page, len(rows))

		if page == maxPages {
			break
		}
		if err := e.drv.Click(ctx, driver.FieldNextPage); err != nil {
			if errors.Is(err, driver.ErrElementNotFound) {
				break
			}
			return nil, fmt.Errorf("next page: %w", err)
		}
		e.settle(ctx)
	}

	logging.Catalog("extracted %d packages", len(all))
	return all, nil
}

// Detail opens one package's edit page and reads it.
func (e *Extractor) Detail(ctx context.Context, id string) (*Detail, error) {
	timer := logging.StartTimer(logging.CategoryCatalog, "detail")
	defer timer.Stop()

	if err := e.drv.Navigate(ctx, e.cfg.Portal.PackageManageURL(id)); err != nil {
		return nil, fmt.Errorf("open package %s: %w", id, err)
	}
	e.settle(ctx)

	html, err := e.drv.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read package %s: %w", id, err)
	}
	d, err := ParseDetail(html)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", id, err)
	}
	d.ID = id
	logging.Catalog("package %s: %s", id, d.ProgramCode)
	return d, nil
}

func (e *Extractor) search(ctx context.Context, keyword string) error {
	err := e.drv.SetValue(ctx, driver.FieldSearchBox, keyword)
	switch {
	case err == nil:
		if err := e.drv.Click(ctx, driver.FieldSearchGo); err != nil {
			logging.CatalogWarn("search submit: %v", err)
		}
		e.settle(ctx)
	case errors.Is(err, driver.ErrElementNotFound):
		logging.CatalogDebug("no search box, walking unfiltered listing")
	default:
		return fmt.Errorf("search %q: %w", keyword, err)
	}
	return nil
}

func (e *Extractor) settle(ctx context.Context) {
	driver.Settle(ctx, e.cfg.Browser.SettleDelay())
}

// ParseListing pulls package rows out of listing markup. Rows carry at
// least six cells: status badge, id, linked name, format, category and
// expiry, with created/edited dates present on most listing variants.
func ParseListing(html, baseURL string) ([]Package, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []Package
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}

		p := Package{
			ID:       clean(cells.Eq(1).Text()),
			Status:   clean(cells.Eq(0).Find(".badge, span").First().Text()),
			Name:     clean(cells.Eq(2).Text()),
			Format:   clean(cells.Eq(3).Text()),
			Category: clean(cells.Eq(4).Text()),
			Expiry:   clean(cells.Eq(5).Text()),
		}
		if cells.Length() > 6 {
			p.Created = clean(cells.Eq(6).Text())
		}
		if cells.Length() > 7 {
			p.Edited = clean(cells.Eq(7).Text())
		}
		if href, ok := cells.Eq(2).Find("a").First().Attr("href"); ok && href != "" {
			if strings.HasPrefix(href, "http") {
				p.URL = href
			} else {
				p.URL = baseURL + href
			}
		}
		out = append(out, p)
	})
	return out, nil
}

// ParseDetail pulls the package fields out of edit-page markup.
func ParseDetail(html string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	d := &Detail{
		ProgramCode:  inputValue(doc, "#program_code"),
		ProgramName:  inputValue(doc, "#program_name"),
		ShortDetail:  inputValue(doc, "#short_detail"),
		NumSchedules: inputValue(doc, "#num_program"),
		TourType:     checkedLabel(doc, "type_program"),
		WebDisplay:   checkedLabel(doc, "status"),
		Country:      selectText(doc, "country[]"),
		Province:     selectText(doc, "province[]"),
		MainCity:     selectText(doc, "main_city"),
	}
	if d.ProgramCode == "" && d.ProgramName == "" {
		return nil, ErrNoSuchPackage
	}
	return d, nil
}

// inputValue reads an input's value attribute, falling back to element
// text for textareas.
func inputValue(doc *goquery.Document, selector string) string {
	el := doc.Find(selector).First()
	if v, ok := el.Attr("value"); ok {
		return strings.TrimSpace(v)
	}
	return clean(el.Text())
}

// checkedLabel reads the label text next to the checked radio of a group,
// falling back to the radio's value.
func checkedLabel(doc *goquery.Document, name string) string {
	el := doc.Find(`input[name="` + name + `"][checked]`).First()
	if el.Length() == 0 {
		return ""
	}
	if label := clean(el.Next().Text()); label != "" {
		return label
	}
	v, _ := el.Attr("value")
	return strings.TrimSpace(v)
}

// selectText reads a bootstrap-select's rendered button text, falling back
// to the selected options of the underlying select in pre-render markup.
func selectText(doc *goquery.Document, name string) string {
	sel := `select[name="` + name + `"]`
	if btn := clean(doc.Find(sel + ` + button.dropdown-toggle`).First().Text()); btn != "" {
		return btn
	}
	var picked []string
	doc.Find(sel + ` option[selected]`).Each(func(_ int, o *goquery.Selection) {
		if t := clean(o.Text()); t != "" {
			picked = append(picked, t)
		}
	})
	return strings.Join(picked, ", ")
}

// clean collapses runs of whitespace the way innerText renders them.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
