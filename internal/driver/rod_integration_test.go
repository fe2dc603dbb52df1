//go:build integration

package driver_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<h1>Quality B2B</h1>
<form action="/dashboard" method="get">
	<input type="text" name="username" placeholder="Username">
	<input type="password" name="password" placeholder="Password">
	<button type="submit">Login</button>
</form>
</body></html>`

const dashboardPage = `<!DOCTYPE html>
<html><body><h1>Welcome</h1><p>Dashboard</p></body></html>`

const chargeFormPage = `<!DOCTYPE html>
<html><body>
<form action="/charges_group/save" method="get">
	<input type="text" name="start">
	<input type="text" name="end">
	<select name="package"><option value="">เลือกโปรแกรม</option></select>
	<select name="period"></select>
	<input type="text" name="payment_date">
	<input type="text" name="description[]">
	<select name="rate_type[]">
		<option value="6">ค่าไกด์</option>
		<option value="9">เบ็ดเตล็ด</option>
	</select>
	<input type="text" name="price[]">
	<textarea name="remark"></textarea>
	<a id="company-toggle" href="javascript:void(0)">เพิ่มในค่าใช้จ่ายบริษัท</a>
	<div id="company"></div>
	<input type="submit" value="Save">
</form>
<script>
document.querySelector('input[name="end"]').addEventListener('change', function () {
	var p = document.querySelector('select[name="package"]');
	p.innerHTML = '<option value="">เลือกโปรแกรม</option><option value="77">2UCKG-FD002 : KRABI 4 DAYS</option>';
});
document.querySelector('select[name="package"]').addEventListener('change', function () {
	var p = document.querySelector('select[name="period"]');
	p.innerHTML = '<option value="901">2UCKG4NCKGFD251206 (06/12/2025)</option>';
});
document.getElementById('company-toggle').addEventListener('click', function () {
	document.getElementById('company').innerHTML = '<input type="text" name="charges[period]">';
});
</script>
</body></html>`

const confirmationPage = `<!DOCTYPE html>
<html><body>
<h3>บันทึกข้อมูลเรียบร้อย</h3>
<input type="text" id="charges_no" name="charges_no" value="C251206-000123" readonly>
</body></html>`

func newPortalServer() *httptest.Server {
	mux := http.NewServeMux()
	serve := func(page string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, page)
		}
	}
	mux.HandleFunc("/", serve(loginPage))
	mux.HandleFunc("/dashboard", serve(dashboardPage))
	mux.HandleFunc("/charges_group/create", serve(chargeFormPage))
	mux.HandleFunc("/charges_group/save", serve(confirmationPage))
	return httptest.NewServer(mux)
}

func newTestDriver(t *testing.T) *driver.RodDriver {
	t.Helper()
	loc, err := driver.StrategyFor("css")
	require.NoError(t, err)

	cfg := config.DefaultConfig().Browser
	cfg.Headless = true
	cfg.NavigationTimeoutMs = 10000
	cfg.StepTimeoutMs = 10000
	return driver.NewRod(cfg, loc)
}

func TestRodDriver_FormWalk_Integration(t *testing.T) {
	ts := newPortalServer()
	defer ts.Close()

	d := newTestDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	defer func() {
		if err := d.Close(); err != nil {
			t.Logf("close error: %v", err)
		}
	}()
	require.NoError(t, d.Start(ctx), "failed to start browser")

	// Login page: real keystrokes, then the text-addressed submit.
	require.NoError(t, d.Navigate(ctx, ts.URL))
	text, err := d.PageText(ctx)
	require.NoError(t, err)
	require.Contains(t, text, "Quality B2B")

	require.NoError(t, d.Type(ctx, driver.FieldLoginUser, "ops"))
	require.NoError(t, d.Type(ctx, driver.FieldLoginPass, "secret"))
	require.NoError(t, d.Click(ctx, driver.FieldLoginSubmit))

	require.Eventually(t, func() bool {
		text, err := d.PageText(ctx)
		return err == nil && strings.Contains(text, "Welcome")
	}, 10*time.Second, 100*time.Millisecond, "login navigation did not land on dashboard")

	// Charge form: value assignment must repopulate the dependent selects.
	require.NoError(t, d.Navigate(ctx, ts.URL+"/charges_group/create"))

	require.NoError(t, d.SetValue(ctx, driver.FieldDateStart, "01/01/2024"))

	// Before the range-end change fires, the program list is empty.
	_, err = d.SelectByLabel(ctx, driver.FieldProgram, "2UCKG-FD002")
	require.ErrorIs(t, err, driver.ErrOptionNotFound)

	require.NoError(t, d.SetValue(ctx, driver.FieldDateEnd, "31/12/2026"))

	sel, err := d.SelectByLabel(ctx, driver.FieldProgram, "2UCKG-FD002")
	require.NoError(t, err)
	require.Equal(t, "77", sel.Value)
	require.Contains(t, sel.Label, "KRABI")

	period, err := d.SelectByLabel(ctx, driver.FieldPeriod, "2UCKG4NCKGFD251206")
	require.NoError(t, err)
	require.Equal(t, "901", period.Value)

	charge, err := d.SelectByLabel(ctx, driver.FieldChargeType, "เบ็ดเตล็ด")
	require.NoError(t, err)
	require.Equal(t, "9", charge.Value)

	require.NoError(t, d.SetValue(ctx, driver.FieldPaymentDate, "01/09/2026"))
	require.NoError(t, d.SetValue(ctx, driver.FieldDescription, "ค่าอุปกรณ์ออกทัวร์"))
	require.NoError(t, d.SetValue(ctx, driver.FieldAmount, "500"))
	require.NoError(t, d.SetValue(ctx, driver.FieldRemark, "multi\nline\nremark"))

	got, err := d.ReadValue(ctx, driver.FieldAmount)
	require.NoError(t, err)
	require.Equal(t, "500", got)

	values, err := d.InputValues(ctx)
	require.NoError(t, err)
	require.Equal(t, "01/01/2024", values[0])

	// Company sub-block appears only after the toggle.
	err = d.SetValue(ctx, driver.FieldCompanyPeriod, "2UCKG4NCKGFD251206")
	require.ErrorIs(t, err, driver.ErrElementNotFound)

	require.NoError(t, d.Click(ctx, driver.FieldCompanyToggle))
	require.NoError(t, d.SetValue(ctx, driver.FieldCompanyPeriod, "2UCKG4NCKGFD251206"))

	// Submit and recover the confirmation number.
	require.NoError(t, d.ScrollAndClick(ctx, driver.FieldSubmit))

	require.Eventually(t, func() bool {
		url, err := d.CurrentURL(ctx)
		return err == nil && strings.Contains(url, "/charges_group/save")
	}, 10*time.Second, 100*time.Millisecond, "submit did not navigate")

	confirmations, err := d.ConfirmationValues(ctx)
	require.NoError(t, err)
	require.Contains(t, confirmations, "C251206-000123")
}

func TestRodDriver_SetValueRepeatedIsIdempotent_Integration(t *testing.T) {
	ts := newPortalServer()
	defer ts.Close()

	d := newTestDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer d.Close()
	require.NoError(t, d.Start(ctx))

	// Fill the range end `repeats` times and capture everything the change
	// handler touches: the field value and the repopulated program list.
	fill := func(repeats int) (endValue, programMarkup string, sel driver.Selection) {
		require.NoError(t, d.Navigate(ctx, ts.URL+"/charges_group/create"))
		require.NoError(t, d.SetValue(ctx, driver.FieldDateStart, "01/01/2024"))
		for i := 0; i < repeats; i++ {
			require.NoError(t, d.SetValue(ctx, driver.FieldDateEnd, "31/12/2026"))
		}

		var err error
		endValue, err = d.ReadValue(ctx, driver.FieldDateEnd)
		require.NoError(t, err)

		html, err := d.HTML(ctx)
		require.NoError(t, err)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		require.NoError(t, err)
		programMarkup, err = doc.Find(`select[name="package"]`).Html()
		require.NoError(t, err)

		sel, err = d.SelectByLabel(ctx, driver.FieldProgram, "2UCKG-FD002")
		require.NoError(t, err)
		return endValue, programMarkup, sel
	}

	onceValue, onceMarkup, onceSel := fill(1)
	twiceValue, twiceMarkup, twiceSel := fill(2)

	require.Equal(t, "31/12/2026", onceValue)
	require.Equal(t, onceValue, twiceValue)
	require.Equal(t, onceMarkup, twiceMarkup,
		"double assignment changed the repopulated program options")
	require.Equal(t, onceSel, twiceSel)
}

func TestRodDriver_SubmitFallback_Integration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/button", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><form action="/done"><button type="submit">ตกลง</button></form></body></html>`)
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><p>no form here</p></body></html>`)
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	d := newTestDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	defer d.Close()
	require.NoError(t, d.Start(ctx))

	require.NoError(t, d.Navigate(ctx, ts.URL+"/button"))
	method, err := d.SubmitForm(ctx)
	require.NoError(t, err)
	require.Equal(t, "button_submit", method)

	require.NoError(t, d.Navigate(ctx, ts.URL+"/bare"))
	_, err = d.SubmitForm(ctx)
	require.ErrorIs(t, err, driver.ErrNoSubmitControl)
}
