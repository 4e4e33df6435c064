package engine

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// Session is the live browser connection handle. Owned by one publish
// attempt at a time and released at the end of every attempt.
type Session struct {
	Browser *rod.Browser

	mu         sync.Mutex
	released   bool
	disconnect func()
	log        *zap.Logger
}

// Release drops the CDP connection by cancelling the session's context.
// The browser process, its logged-in profile, and its tabs are untouched:
// Browser.Close would send the browser-wide close command and kill the
// operator's Chrome. Safe to call more than once.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.disconnect != nil {
		s.disconnect()
	}
	s.log.Debug("browser connection released")
}

// Connector dials an already-running Chrome over its remote debugging
// endpoint. The browser is assumed to be authenticated to the platform;
// login state is checked later by the tab manager.
type Connector struct {
	endpoint string
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

func NewConnector(endpoint string, attempts int, backoff time.Duration, log *zap.Logger) *Connector {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Connector{endpoint: endpoint, attempts: attempts, backoff: backoff, log: log.Named("connector")}
}

// Connect dials the endpoint with the configured attempt budget and fixed
// backoff. A Version probe validates the handshake; rod's Connect alone can
// succeed against a half-dead endpoint.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff); err != nil {
				return nil, err
			}
		}
		sessCtx, cancel := context.WithCancel(ctx)
		browser := rod.New().ControlURL(c.endpoint).Context(sessCtx)
		if err := browser.Connect(); err != nil {
			cancel()
			lastErr = err
			c.log.Warn("connect attempt failed",
				zap.Int("attempt", attempt), zap.Int("budget", c.attempts), zap.Error(err))
			continue
		}
		if _, err := browser.Version(); err != nil {
			// Cancel drops the half-dead connection; a browser close command
			// here would take the operator's Chrome down with it.
			cancel()
			lastErr = err
			c.log.Warn("handshake probe failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.log.Info("browser connected", zap.String("endpoint", c.endpoint), zap.Int("attempt", attempt))
		return &Session{Browser: browser, disconnect: cancel, log: c.log}, nil
	}
	return nil, &ConnectionError{Endpoint: c.endpoint, Attempts: c.attempts, Err: lastErr}
}
