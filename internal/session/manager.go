// Package session owns the one authenticated browsing session a run uses.
// Login is idempotent, release is guaranteed, and both are safe to call
// more than once.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/logging"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/publicsuffix"
)

// ErrAuthentication marks a failed login. It is fatal for the whole batch;
// callers must not retry entries after seeing it.
var ErrAuthentication = errors.New("authentication failed")

// Manager authenticates the driver's page against the portal and releases
// it when the run ends.
type Manager struct {
	cfg  config.Config
	drv  driver.Driver
	http *http.Client

	mu            sync.Mutex
	authenticated bool
	released      bool
}

// NewManager creates a session manager over the given driver.
func NewManager(cfg config.Config, drv driver.Driver) *Manager {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = log.New(io.Discard, "", 0)
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	// The portal 302s anonymous probes through the login page and expects
	// its session cookie to survive the hop.
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		retryClient.HTTPClient.Jar = jar
	}

	return &Manager{
		cfg:  cfg,
		drv:  drv,
		http: retryClient.StandardClient(),
	}
}

// Preflight checks that the portal answers over plain HTTP before a browser
// is launched. Transient failures are retried by the underlying client.
func (m *Manager) Preflight(ctx context.Context) error {
	url := m.cfg.Portal.LoginURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("preflight request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:83.0) Gecko/20100101 Firefox/83.0")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("portal unhealthy: status %d", resp.StatusCode)
	}
	logging.Session("preflight ok: %s -> %d", url, resp.StatusCode)
	return nil
}

// Login authenticates the session. If the page already shows the
// authenticated markers, credentials are not resubmitted. A marker check
// that still fails after submitting credentials returns ErrAuthentication.
func (m *Manager) Login(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.authenticated {
		return nil
	}

	timer := logging.StartTimer(logging.CategorySession, "login")
	defer timer.Stop()

	if err := m.drv.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	// A fresh start un-releases the session, so long-lived callers can cycle
	// login and release on one manager.
	m.released = false

	if err := m.drv.Navigate(ctx, m.cfg.Portal.LoginURL()); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())

	ok, err := m.checkMarkers(ctx)
	if err != nil {
		return err
	}
	if ok {
		logging.Session("already logged in")
		m.authenticated = true
		return nil
	}

	logging.Session("submitting credentials")
	if err := m.drv.Type(ctx, driver.FieldLoginUser, m.cfg.Portal.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := m.drv.Type(ctx, driver.FieldLoginPass, m.cfg.Portal.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := m.drv.Click(ctx, driver.FieldLoginSubmit); err != nil {
		return fmt.Errorf("click login: %w", err)
	}
	driver.Settle(ctx, m.cfg.Browser.SettleDelay())

	ok, err = m.checkMarkers(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logging.SessionError("markers %v absent after credential submit", m.cfg.Portal.AuthMarkers)
		return fmt.Errorf("%w: no authenticated marker after submit", ErrAuthentication)
	}

	logging.Session("login successful")
	m.authenticated = true
	return nil
}

// IsAuthenticated reports whether Login has succeeded on this session.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// Release closes the browsing session. Idempotent; every run exit path
// calls it, including aborts.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil
	}
	m.released = true
	m.authenticated = false

	logging.Session("releasing session")
	if err := m.drv.Close(); err != nil {
		logging.SessionError("release: %v", err)
		return err
	}
	return nil
}

// checkMarkers scans the page for any configured authenticated marker.
func (m *Manager) checkMarkers(ctx context.Context) (bool, error) {
	html, err := m.drv.HTML(ctx)
	if err != nil {
		return false, fmt.Errorf("read page: %w", err)
	}
	for _, marker := range m.cfg.Portal.AuthMarkers {
		if strings.Contains(html, marker) {
			logging.SessionDebug("marker %q present", marker)
			return true, nil
		}
	}
	return false, nil
}
