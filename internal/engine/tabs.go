package engine

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// Tab is one browser tab plus the flags the cleanup discipline depends on.
// A reused tab is never closed; a freshly created tab that ends in error is.
type Tab struct {
	Page           *rod.Page
	FreshlyCreated bool
	CurrentURL     string
}

// CloseIfFresh closes the tab only when this attempt created it. Reused
// tabs belong to the long-running browser profile, not to us.
func (t *Tab) CloseIfFresh(log *zap.Logger) {
	if t == nil || !t.FreshlyCreated || t.Page == nil {
		return
	}
	if err := t.Page.Close(); err != nil {
		log.Debug("closing fresh tab", zap.Error(err))
	}
}

// TabConfig tunes tab selection and cleanup.
type TabConfig struct {
	HomeURL     string
	Host        string
	DenyPaths   []string
	MaxTabs     int
	NavTimeout  time.Duration
	ProbeWindow time.Duration
}

// TabManager selects, verifies, and (if needed) creates the tab used for
// publishing, keeping total tab count bounded over long-running operation.
type TabManager struct {
	cfg TabConfig
	log *zap.Logger
}

func NewTabManager(cfg TabConfig, log *zap.Logger) *TabManager {
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = 6
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 15 * time.Second
	}
	if cfg.ProbeWindow <= 0 {
		cfg.ProbeWindow = 5 * time.Second
	}
	return &TabManager{cfg: cfg, log: log.Named("tabs")}
}

// FindOrCreateTab picks the publishing tab. Preference order: a tab already
// on the home feed with a compose control, then any platform tab off the
// denylist with that control, then a new tab navigated to home. A new tab
// without the compose control means the profile is logged out, which is
// terminal.
func (m *TabManager) FindOrCreateTab(ctx context.Context, sess *Session, forceNew bool) (*Tab, error) {
	pages, err := sess.Browser.Pages()
	if err != nil {
		return nil, wrapPageErr(err)
	}

	m.cleanupStale(pages)

	if !forceNew {
		if tab := m.pickExisting(ctx, pages); tab != nil {
			return tab, nil
		}
	}
	return m.createTab(ctx, sess)
}

// pickExisting runs the two reuse passes over the open tabs.
func (m *TabManager) pickExisting(ctx context.Context, pages rod.Pages) *Tab {
	type candidate struct {
		page *rod.Page
		url  string
		home bool
	}
	var candidates []candidate
	for _, page := range pages {
		info, err := page.Info()
		if err != nil || info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		u := info.URL
		if !onHost(u, m.cfg.Host) || deniedPath(u, m.cfg.DenyPaths) {
			continue
		}
		candidates = append(candidates, candidate{page: page, url: u, home: isHomeURL(u, m.cfg.HomeURL)})
	}

	// Pass 1: home feed tabs. Pass 2: any allowed platform tab.
	for _, wantHome := range []bool{true, false} {
		for _, c := range candidates {
			if c.home != wantHome {
				continue
			}
			if _, err := c.page.Activate(); err != nil {
				m.log.Debug("activating candidate tab", zap.String("url", c.url), zap.Error(err))
				continue
			}
			driver := NewDriver(c.page, m.log)
			if _, err := driver.WaitControl(ctx, RoleComposeButton, m.cfg.ProbeWindow); err != nil {
				m.log.Debug("candidate tab has no compose control", zap.String("url", c.url))
				continue
			}
			m.log.Info("reusing tab", zap.String("url", c.url), zap.Bool("home", c.home))
			return &Tab{Page: c.page, FreshlyCreated: false, CurrentURL: c.url}
		}
	}
	return nil
}

func (m *TabManager) createTab(ctx context.Context, sess *Session) (*Tab, error) {
	page, err := sess.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, wrapPageErr(err)
	}
	tab := &Tab{Page: page, FreshlyCreated: true}

	// Stealth script has to land before the platform's own scripts run.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		m.log.Debug("installing stealth script", zap.Error(err))
	}

	if err := page.Context(ctx).Timeout(m.cfg.NavTimeout).Navigate(m.cfg.HomeURL); err != nil {
		tab.CloseIfFresh(m.log)
		return nil, wrapPageErr(err)
	}
	if err := page.Context(ctx).Timeout(m.cfg.NavTimeout).WaitLoad(); err != nil {
		m.log.Debug("home page load wait", zap.Error(err))
	}
	tab.CurrentURL = m.cfg.HomeURL

	driver := NewDriver(page, m.log)
	if _, err := driver.WaitControl(ctx, RoleComposeButton, m.cfg.ProbeWindow); err != nil {
		tab.CloseIfFresh(m.log)
		return nil, &NotLoggedInError{URL: m.cfg.HomeURL}
	}
	m.log.Info("created fresh tab", zap.String("url", m.cfg.HomeURL))
	return tab, nil
}

// cleanupStale closes leftover blank and leaked compose tabs over the tab
// budget. Best effort; selection proceeds regardless.
func (m *TabManager) cleanupStale(pages rod.Pages) {
	if len(pages) <= m.cfg.MaxTabs {
		return
	}
	closed := 0
	for _, page := range pages {
		if len(pages)-closed <= m.cfg.MaxTabs {
			break
		}
		info, err := page.Info()
		if err != nil {
			continue
		}
		u := info.URL
		stale := u == "" || u == "about:blank" ||
			strings.HasPrefix(u, "chrome://") ||
			(onHost(u, m.cfg.Host) && strings.Contains(u, "/compose/"))
		if !stale {
			continue
		}
		if err := page.Close(); err != nil {
			m.log.Debug("closing stale tab", zap.String("url", u), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		m.log.Info("closed stale tabs", zap.Int("count", closed))
	}
}

func onHost(raw, host string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	h := strings.TrimPrefix(u.Hostname(), "www.")
	return h == strings.TrimPrefix(host, "www.")
}

func deniedPath(raw string, deny []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	for _, p := range deny {
		if strings.HasPrefix(u.Path, p) {
			return true
		}
	}
	return false
}

func isHomeURL(raw, home string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	h, err := url.Parse(home)
	if err != nil {
		return false
	}
	return u.Hostname() == h.Hostname() && (u.Path == h.Path || u.Path == "/home" || u.Path == "/" || u.Path == "")
}
