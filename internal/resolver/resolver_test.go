package resolver

import (
	"context"
	"errors"
	"testing"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/driver/drivertest"

	"github.com/stretchr/testify/require"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		tourCode string
		want     string
	}{
		{"2UCKG4NCKGFD251206", "2UCKG"},
		{"PKG12NABC", "PKG"},
		{"12NABC", "1"}, // minimal match before the marker; heuristic, not fixed up
		{"ABCDEFGH", "ABCDE"},
		{"AB", "AB"},
		{"", ""},
		{"lower4n", "lower"}, // marker detection is uppercase only
	}
	for _, tt := range tests {
		if got := Prefix(tt.tourCode); got != tt.want {
			t.Errorf("Prefix(%q) = %q, want %q", tt.tourCode, got, tt.want)
		}
	}
}

func testConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Browser.SettleDelayMs = 1
	return cfg
}

func listingPage(body string) string {
	return "<html><body><h1>Travel Packages</h1>" + body + "</body></html>"
}

func TestResolveSearchesListing(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>2UCKG-FD002 : KRABI 4 DAYS</td>")

	r := New(cfg, fake)
	code, err := r.Resolve(context.Background(), "2UCKG4NCKGFD251206")
	require.NoError(t, err)
	require.Equal(t, "2UCKG-FD002", code)

	require.Equal(t, "2UCKG4NCKGFD251206", fake.Values[driver.FieldSearchBox])
	require.True(t, fake.ClickedField(driver.FieldSearchGo))
}

func TestResolveCachesByPrefix(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>2UCKG-FD002</td>")

	r := New(cfg, fake)
	codes := []string{
		"2UCKG4NCKGFD251206",
		"2UCKG4NCKGFD251213",
		"2UCKG5NCKGFD260101",
	}
	for _, tc := range codes {
		code, err := r.Resolve(context.Background(), tc)
		require.NoError(t, err)
		require.Equal(t, "2UCKG-FD002", code)
	}

	require.Equal(t, 1, fake.NavCount(cfg.Portal.PackagesURL()),
		"shared prefix must cost exactly one listing fetch")
}

func TestResolveNotFound(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>nothing relevant</td>")

	r := New(cfg, fake)
	_, err := r.Resolve(context.Background(), "2UCKG4NCKGFD251206")
	require.ErrorIs(t, err, ErrNotFound)

	// Misses are not cached; the next attempt hits the listing again.
	_, err = r.Resolve(context.Background(), "2UCKG4NCKGFD251299")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, fake.NavCount(cfg.Portal.PackagesURL()))
}

func TestResolveLoosePattern(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	// Three or four letters after the dash miss the strict shape.
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>2UCKG-FDEX</td>")

	r := New(cfg, fake)
	code, err := r.Resolve(context.Background(), "2UCKG4NCKGFD251206")
	require.NoError(t, err)
	require.Equal(t, "2UCKG-FDEX", code)
}

func TestResolveTableRowFallback(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	// The program code carries a different prefix than the tour code, so
	// only the row scan can find it.
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage(
		"<table><tr><td>1</td><td>Bangkok City</td><td>9ZBKK-XY123</td><td>QRTOUR123</td></tr></table>")

	r := New(cfg, fake)
	code, err := r.Resolve(context.Background(), "QRTOUR123")
	require.NoError(t, err)
	require.Equal(t, "9ZBKK-XY123", code)
}

func TestResolveWithoutSearchBox(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	fake.Missing[driver.FieldSearchBox] = true
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>2UCKG-FD002</td>")

	r := New(cfg, fake)
	code, err := r.Resolve(context.Background(), "2UCKG4NCKGFD251206")
	require.NoError(t, err)
	require.Equal(t, "2UCKG-FD002", code)
	require.False(t, fake.ClickedField(driver.FieldSearchGo))
}

func TestResolveSearchErrorPropagates(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()
	fake.SetErrs[driver.FieldSearchBox] = errors.New("page crashed")
	fake.Pages[cfg.Portal.PackagesURL()] = listingPage("<td>2UCKG-FD002</td>")

	r := New(cfg, fake)
	_, err := r.Resolve(context.Background(), "2UCKG4NCKGFD251206")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
