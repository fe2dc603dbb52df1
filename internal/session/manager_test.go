package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/driver/drivertest"

	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := *config.DefaultConfig()
	cfg.Portal.Username = "ops"
	cfg.Portal.Password = "secret"
	cfg.Browser.SettleDelayMs = 1
	return cfg
}

func TestLoginSubmitsCredentials(t *testing.T) {
	cfg := testConfig()
	dashboard := cfg.Portal.BaseURL + "/dashboard"

	fake := drivertest.New()
	fake.Pages[cfg.Portal.LoginURL()] = "<html><body>please sign in</body></html>"
	fake.Pages[dashboard] = "<html><body>Welcome back</body></html>"
	fake.ClickRedirects[driver.FieldLoginSubmit] = dashboard

	m := NewManager(cfg, fake)
	require.NoError(t, m.Login(context.Background()))

	require.True(t, fake.Started)
	require.Equal(t, "ops", fake.Typed[driver.FieldLoginUser])
	require.Equal(t, "secret", fake.Typed[driver.FieldLoginPass])
	require.True(t, fake.ClickedField(driver.FieldLoginSubmit))
	require.True(t, m.IsAuthenticated())
}

func TestLoginIdempotentWhenAlreadyAuthenticated(t *testing.T) {
	cfg := testConfig()

	fake := drivertest.New()
	// Landing page already shows a marker, e.g. a remembered session.
	fake.Pages[cfg.Portal.LoginURL()] = "<html><body>Dashboard</body></html>"

	m := NewManager(cfg, fake)
	require.NoError(t, m.Login(context.Background()))

	require.Empty(t, fake.Typed, "credentials must not be resubmitted")
	require.False(t, fake.ClickedField(driver.FieldLoginSubmit))
	require.True(t, m.IsAuthenticated())

	// A second Login must be a no-op.
	require.NoError(t, m.Login(context.Background()))
	require.Equal(t, 1, fake.NavCount(cfg.Portal.LoginURL()))
}

func TestLoginFailsWhenMarkersStayAbsent(t *testing.T) {
	cfg := testConfig()

	fake := drivertest.New()
	fake.Pages[cfg.Portal.LoginURL()] = "<html><body>wrong password</body></html>"
	// No redirect: the click leaves us on the same page.

	m := NewManager(cfg, fake)
	err := m.Login(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
	require.False(t, m.IsAuthenticated())
}

func TestLoginPropagatesDriverStartFailure(t *testing.T) {
	cfg := testConfig()

	fake := drivertest.New()
	fake.StartErr = errors.New("chrome exploded")

	m := NewManager(cfg, fake)
	err := m.Login(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAuthentication)
}

func TestReleaseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	fake := drivertest.New()

	m := NewManager(cfg, fake)
	require.NoError(t, m.Release())
	require.NoError(t, m.Release())

	require.True(t, fake.Closed)
	require.Equal(t, 1, fake.CloseCalls)
	require.False(t, m.IsAuthenticated())
}

func TestPreflight(t *testing.T) {
	t.Run("healthy portal", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		cfg := testConfig()
		cfg.Portal.BaseURL = ts.URL

		m := NewManager(cfg, drivertest.New())
		require.NoError(t, m.Preflight(context.Background()))
	})

	t.Run("client errors are not fatal", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer ts.Close()

		cfg := testConfig()
		cfg.Portal.BaseURL = ts.URL

		m := NewManager(cfg, drivertest.New())
		require.NoError(t, m.Preflight(context.Background()))
	})

	t.Run("server errors fail after retries", func(t *testing.T) {
		hits := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		cfg := testConfig()
		cfg.Portal.BaseURL = ts.URL

		m := NewManager(cfg, drivertest.New())
		require.Error(t, m.Preflight(context.Background()))
		require.Greater(t, hits, 1, "expected retries before giving up")
	})
}
