package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tourcharge/internal/config"
	"tourcharge/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"
)

// jsLocate resolves a query to an element. CSS queries go through
// querySelector; "text=" queries return the smallest element whose visible
// text (or value/placeholder, for inputs) contains the substring.
const jsLocate = `
	const locate = (q) => {
		if (q.startsWith('text=')) {
			const text = q.slice(5);
			let best = null;
			for (const el of document.querySelectorAll('a, button, input, label, span, td, div')) {
				const hay = (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA')
					? (el.value || el.placeholder || '')
					: (el.textContent || '');
				if (hay.indexOf(text) === -1) continue;
				if (!best || hay.length < best.hay.length) best = { el, hay };
			}
			return best ? best.el : null;
		}
		return document.querySelector(q);
	};
`

// RodDriver drives the portal through Chrome over CDP.
type RodDriver struct {
	cfg     config.BrowserConfig
	locator Locator

	mu         sync.Mutex
	browser    *rod.Browser
	page       *rod.Page
	controlURL string
}

var _ Driver = (*RodDriver)(nil)

// NewRod creates a Chrome-backed driver. The locator decides how fields are
// addressed on the page.
func NewRod(cfg config.BrowserConfig, loc Locator) *RodDriver {
	return &RodDriver{cfg: cfg, locator: loc}
}

// ControlURL returns the WebSocket debugger URL of the attached browser.
func (d *RodDriver) ControlURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlURL
}

// Start connects to an existing Chrome or launches a new one, then opens
// the working page in a fresh incognito context.
func (d *RodDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// If we already have a browser, verify it's still alive
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = d.browser.Close()
		d.browser = nil
		d.page = nil
		d.controlURL = ""
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" && len(d.cfg.Launch) > 0 {
		bin := d.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(d.cfg.Headless)
		for _, rawFlag := range d.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			// Fallback without the extra flags
			fallback := launcher.New().Bin(bin).Headless(d.cfg.Headless)
			alt, altErr := fallback.Launch()
			if altErr != nil {
				return fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
			}
			controlURL = alt
		} else {
			controlURL = url
		}
	}

	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no debugger_url and failed to launch: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := browser.Incognito()
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             d.viewportWidth(),
		Height:            d.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	d.browser = browser
	d.page = page
	d.controlURL = controlURL
	logging.Browser("connected, control url %s", controlURL)
	return nil
}

// Close releases the page and the browser.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}

	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	d.controlURL = ""
	logging.Browser("closed")
	return err
}

func (d *RodDriver) currentPage() (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return nil, ErrNotStarted
	}
	return d.page, nil
}

func (d *RodDriver) viewportWidth() int {
	if d.cfg.ViewportWidth == 0 {
		return 1920
	}
	return d.cfg.ViewportWidth
}

func (d *RodDriver) viewportHeight() int {
	if d.cfg.ViewportHeight == 0 {
		return 1080
	}
	return d.cfg.ViewportHeight
}

// Navigate loads a URL and waits for the load event.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	p := page.Context(ctx).Timeout(d.cfg.NavigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	logging.BrowserDebug("navigated to %s", url)
	return nil
}

// CurrentURL returns the page's current location.
func (d *RodDriver) CurrentURL(ctx context.Context) (string, error) {
	page, err := d.currentPage()
	if err != nil {
		return "", err
	}
	info, err := page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// eval runs a JS function on the page and parses the result.
func (d *RodDriver) eval(ctx context.Context, js string, args ...interface{}) (gjson.Result, error) {
	page, err := d.currentPage()
	if err != nil {
		return gjson.Result{}, err
	}
	res, err := page.Context(ctx).Timeout(d.cfg.StepTimeout()).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("evaluate: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return gjson.Result{}, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal eval result: %w", err)
	}
	return gjson.ParseBytes(raw), nil
}

// PageText returns the rendered text of the document body.
func (d *RodDriver) PageText(ctx context.Context) (string, error) {
	res, err := d.eval(ctx, `() => document.body ? (document.body.innerText || '') : ''`)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// HTML returns the full document markup.
func (d *RodDriver) HTML(ctx context.Context) (string, error) {
	page, err := d.currentPage()
	if err != nil {
		return "", err
	}
	html, err := page.Context(ctx).Timeout(d.cfg.StepTimeout()).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

// ReadValue returns the current value of a field.
func (d *RodDriver) ReadValue(ctx context.Context, f Field) (string, error) {
	q, err := d.locator.Query(f)
	if err != nil {
		return "", err
	}
	res, err := d.eval(ctx, `(q) => {`+jsLocate+`
		const el = locate(q);
		if (!el) return null;
		return { value: el.value !== undefined ? el.value : (el.textContent || '') };
	}`, q)
	if err != nil {
		return "", err
	}
	if !res.Exists() {
		return "", fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	return res.Get("value").String(), nil
}

// InputValues returns the values of all text inputs, in document order.
func (d *RodDriver) InputValues(ctx context.Context) ([]string, error) {
	res, err := d.eval(ctx, `() =>
		Array.from(document.querySelectorAll('input[type="text"]')).map(el => el.value || '')`)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, v := range res.Array() {
		values = append(values, v.String())
	}
	return values, nil
}

// ConfirmationValues probes the known confirmation-number locations.
func (d *RodDriver) ConfirmationValues(ctx context.Context) ([]string, error) {
	res, err := d.eval(ctx, `(queries) => {
		const out = [];
		for (const q of queries) {
			const el = document.querySelector(q);
			if (el && el.value) out.push(el.value);
		}
		return out;
	}`, d.locator.ConfirmationQueries())
	if err != nil {
		return nil, err
	}
	var values []string
	for _, v := range res.Array() {
		values = append(values, v.String())
	}
	return values, nil
}

// Type sends real keystrokes to a field.
func (d *RodDriver) Type(ctx context.Context, f Field, text string) error {
	q, err := d.locator.Query(f)
	if err != nil {
		return err
	}
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(d.cfg.StepTimeout()).Element(q)
	if err != nil {
		return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %s: %w", f, err)
	}
	return nil
}

// SetValue assigns a field value and fires input+change so dependent
// listeners recompute. Triggering the notification is load-bearing: the
// portal recalculates totals and repopulates selects from these events.
func (d *RodDriver) SetValue(ctx context.Context, f Field, value string) error {
	q, err := d.locator.Query(f)
	if err != nil {
		return err
	}
	res, err := d.eval(ctx, `(q, value) => {`+jsLocate+`
		const el = locate(q);
		if (!el) return { ok: false };
		el.value = value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return { ok: true };
	}`, q, value)
	if err != nil {
		return err
	}
	if !res.Get("ok").Bool() {
		return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	logging.BrowserDebug("set %s", f)
	return nil
}

// SelectByLabel picks the first option whose visible text contains label.
// Selects rendered as bootstrap-select widgets are driven through the
// selectpicker API so the widget display stays in sync.
func (d *RodDriver) SelectByLabel(ctx context.Context, f Field, label string) (Selection, error) {
	q, err := d.locator.Query(f)
	if err != nil {
		return Selection{}, err
	}
	res, err := d.eval(ctx, `(q, label) => {`+jsLocate+`
		const el = locate(q);
		if (!el || el.tagName !== 'SELECT') return { success: false, reason: 'no_select' };
		const opt = Array.from(el.options || []).find(o => (o.textContent || '').indexOf(label) !== -1);
		if (!opt) return { success: false, reason: 'no_option' };
		if (window.jQuery && window.jQuery(el).selectpicker) {
			window.jQuery(el).selectpicker('val', opt.value);
			window.jQuery(el).trigger('change');
		} else {
			el.value = opt.value;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
		return { success: true, value: opt.value, text: opt.textContent };
	}`, q, label)
	if err != nil {
		return Selection{}, err
	}
	if !res.Get("success").Bool() {
		if res.Get("reason").String() == "no_select" {
			return Selection{}, fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
		}
		return Selection{}, fmt.Errorf("%w: %q in %s", ErrOptionNotFound, label, f)
	}
	sel := Selection{
		Value: res.Get("value").String(),
		Label: res.Get("text").String(),
	}
	logging.BrowserDebug("selected %s = %s", f, sel.Value)
	return sel, nil
}

// SelectByValue picks an option by its value attribute.
func (d *RodDriver) SelectByValue(ctx context.Context, f Field, value string) error {
	q, err := d.locator.Query(f)
	if err != nil {
		return err
	}
	res, err := d.eval(ctx, `(q, value) => {`+jsLocate+`
		const el = locate(q);
		if (!el || el.tagName !== 'SELECT') return { success: false, reason: 'no_select' };
		const opt = Array.from(el.options || []).find(o => o.value === value);
		if (!opt) return { success: false, reason: 'no_option' };
		if (window.jQuery && window.jQuery(el).selectpicker) {
			window.jQuery(el).selectpicker('val', value);
			window.jQuery(el).trigger('change');
		} else {
			el.value = value;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
		return { success: true };
	}`, q, value)
	if err != nil {
		return err
	}
	if !res.Get("success").Bool() {
		if res.Get("reason").String() == "no_select" {
			return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
		}
		return fmt.Errorf("%w: value %q in %s", ErrOptionNotFound, value, f)
	}
	logging.BrowserDebug("selected %s = %s", f, value)
	return nil
}

// Click clicks a field. CSS queries click through CDP input events;
// text queries resolve and click in page.
func (d *RodDriver) Click(ctx context.Context, f Field) error {
	q, err := d.locator.Query(f)
	if err != nil {
		return err
	}
	if strings.HasPrefix(q, "text=") {
		return d.clickInPage(ctx, f, q, false)
	}
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(d.cfg.StepTimeout()).Element(q)
	if err != nil {
		return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", f, err)
	}
	logging.BrowserDebug("clicked %s", f)
	return nil
}

// ScrollAndClick scrolls the field into view before clicking.
func (d *RodDriver) ScrollAndClick(ctx context.Context, f Field) error {
	q, err := d.locator.Query(f)
	if err != nil {
		return err
	}
	if strings.HasPrefix(q, "text=") {
		return d.clickInPage(ctx, f, q, true)
	}
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	el, err := page.Context(ctx).Timeout(d.cfg.StepTimeout()).Element(q)
	if err != nil {
		return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %s: %w", f, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", f, err)
	}
	logging.BrowserDebug("clicked %s", f)
	return nil
}

func (d *RodDriver) clickInPage(ctx context.Context, f Field, q string, scroll bool) error {
	res, err := d.eval(ctx, `(q, scroll) => {`+jsLocate+`
		const el = locate(q);
		if (!el) return { ok: false };
		if (scroll) el.scrollIntoView({ behavior: 'instant', block: 'center' });
		el.click();
		return { ok: true };
	}`, q, scroll)
	if err != nil {
		return err
	}
	if !res.Get("ok").Bool() {
		return fmt.Errorf("%w: %s (%s)", ErrElementNotFound, f, q)
	}
	logging.BrowserDebug("clicked %s", f)
	return nil
}

// SubmitForm tries the generic submit paths in priority order: a submit
// input, a submit button, then a direct form submit.
func (d *RodDriver) SubmitForm(ctx context.Context) (string, error) {
	res, err := d.eval(ctx, `() => {
		let btn = document.querySelector('input[type="submit"]');
		if (btn) {
			btn.scrollIntoView({ behavior: 'instant', block: 'center' });
			btn.click();
			return 'input_submit';
		}
		btn = document.querySelector('button[type="submit"]');
		if (btn) {
			btn.scrollIntoView({ behavior: 'instant', block: 'center' });
			btn.click();
			return 'button_submit';
		}
		const form = document.querySelector('form');
		if (form) {
			form.submit();
			return 'form_submit';
		}
		return null;
	}`)
	if err != nil {
		return "", err
	}
	method := res.String()
	if method == "" {
		return "", ErrNoSubmitControl
	}
	logging.Browser("form submitted via %s", method)
	return method, nil
}
