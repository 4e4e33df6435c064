package engine

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError means the remote debugger endpoint could not be reached
// within the connector's attempt budget. The request fails fast; higher
// layers do not retry beyond the budget already spent here.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("browser connection to %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotLoggedInError means the platform tab has no authenticated session.
// Terminal: a human has to log in again; retrying cannot help.
type NotLoggedInError struct {
	URL string
}

func (e *NotLoggedInError) Error() string {
	return fmt.Sprintf("not logged in to the platform (no compose control at %s)", e.URL)
}

// ElementNotFoundError means a required control could not be located.
// Usually resolved by a composer reset or a new tab.
type ElementNotFoundError struct {
	Role Role
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no control found for role %q", e.Role)
}

// ContextInvalidatedError means the browser context died mid-operation
// (tab crashed, target detached). The next attempt must force a new tab.
type ContextInvalidatedError struct {
	Err error
}

func (e *ContextInvalidatedError) Error() string {
	return fmt.Sprintf("browser context invalidated: %v", e.Err)
}

func (e *ContextInvalidatedError) Unwrap() error { return e.Err }

// PublishNotReadyError means the publish control never became enabled, so
// no click was issued. The attempt left nothing published; retrying is safe.
type PublishNotReadyError struct {
	Waited time.Duration
}

func (e *PublishNotReadyError) Error() string {
	return fmt.Sprintf("publish control not enabled after %s", e.Waited)
}

// InsertionError means the full fallback chain, including the reset
// recovery pass, could not land the text within the acceptance window.
type InsertionError struct {
	Result InsertionResult
	Reason string
}

func (e *InsertionError) Error() string {
	return fmt.Sprintf("text insertion failed (%s): method %d inserted %d/%d chars (ratio %.2f)",
		e.Reason, e.Result.Method, e.Result.InsertedLen, e.Result.ExpectedLen, e.Result.Ratio)
}

// MediaUploadError is non-fatal: callers degrade to publishing text-only.
type MediaUploadError struct {
	Path string
	Err  error
}

func (e *MediaUploadError) Error() string {
	return fmt.Sprintf("media upload of %s failed: %v", e.Path, e.Err)
}

func (e *MediaUploadError) Unwrap() error { return e.Err }

// IsTerminal reports whether an error can never be resolved by retrying.
func IsTerminal(err error) bool {
	var notLoggedIn *NotLoggedInError
	return errors.As(err, &notLoggedIn)
}

// IsRetryable reports whether another attempt might succeed.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	var (
		conn *ConnectionError
	)
	// Connection failures already consumed their own attempt budget.
	if errors.As(err, &conn) {
		return false
	}
	return true
}

// NeedsNewTab reports whether the failure invalidated the current tab, so
// the next attempt must create a fresh one instead of reusing.
func NeedsNewTab(err error) bool {
	var invalidated *ContextInvalidatedError
	return errors.As(err, &invalidated)
}
