package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// Role names a control the engine needs, independent of how the platform
// happens to render it this week. All selector fallback lists live here so a
// platform redesign touches one table, not the orchestration logic.
type Role string

const (
	RoleComposeButton  Role = "compose_button"
	RoleComposerDialog Role = "composer_dialog"
	RoleComposerField  Role = "composer_field"
	RolePublishButton  Role = "publish_button"
	RoleAddEntryButton Role = "add_entry_button"
	RoleMediaButton    Role = "media_button"
	RoleFileInput      Role = "file_input"
	RoleDiscardConfirm Role = "discard_confirm"
	RoleDuplicateToast Role = "duplicate_toast"
	RoleCloseComposer  Role = "close_composer"
)

// roleSelectors maps each role to its CSS fallback chain, most specific
// first. data-testid selectors survive platform redesigns better than
// structural ones, so they lead.
var roleSelectors = map[Role][]string{
	RoleComposeButton: {
		`a[data-testid="SideNav_NewTweet_Button"]`,
		`a[href="/compose/post"]`,
		`a[href="/compose/tweet"]`,
		`a[aria-label="Post"]`,
	},
	RoleComposerDialog: {
		`div[role="dialog"][aria-modal="true"]`,
		`div[data-testid="twc-cc-mask"] ~ div[role="dialog"]`,
	},
	RoleComposerField: {
		`div[role="dialog"] div[data-testid="tweetTextarea_0"]`,
		`div[data-testid="tweetTextarea_0"]`,
		`div[role="dialog"] div[role="textbox"][contenteditable="true"]`,
	},
	RolePublishButton: {
		`button[data-testid="tweetButton"]`,
		`div[role="dialog"] button[data-testid="tweetButtonInline"]`,
	},
	RoleAddEntryButton: {
		`button[data-testid="addButton"]`,
		`a[aria-label="Add post"]`,
	},
	RoleMediaButton: {
		`button[data-testid="fileInput"]`,
		`input[data-testid="fileInput"]`,
		`button[aria-label="Add photos or video"]`,
	},
	RoleFileInput: {
		`input[data-testid="fileInput"]`,
		`input[type="file"][accept*="image"]`,
		`input[type="file"]`,
	},
	RoleDiscardConfirm: {
		`button[data-testid="confirmationSheetConfirm"]`,
	},
	RoleDuplicateToast: {
		`div[data-testid="toast"]`,
		`div[role="alert"]`,
	},
	RoleCloseComposer: {
		`button[data-testid="app-bar-close"]`,
		`div[role="dialog"] button[aria-label="Close"]`,
	},
}

// duplicatePhrases are the platform strings that mark a duplicate-content
// rejection inside a toast/alert surface.
var duplicatePhrases = []string{
	"already said that",
	"whoops! you already",
	"duplicate",
}

// Driver is the automation capability boundary: find a control by role,
// probe for it, address composer fields positionally. Everything above it
// speaks roles, never selectors.
type Driver struct {
	page *rod.Page
	log  *zap.Logger
}

func NewDriver(page *rod.Page, log *zap.Logger) *Driver {
	return &Driver{page: page, log: log.Named("driver")}
}

// Page exposes the underlying rod page for operations that genuinely need
// it (keyboard, eval). Components must not use it for element lookup.
func (d *Driver) Page() *rod.Page { return d.page }

// FindControl returns the first visible element matching the role's
// selector chain, or ElementNotFoundError.
func (d *Driver) FindControl(ctx context.Context, role Role) (*rod.Element, error) {
	selectors, ok := roleSelectors[role]
	if !ok {
		return nil, fmt.Errorf("no selector chain registered for role %q", role)
	}
	page := d.page.Context(ctx)
	for _, sel := range selectors {
		has, el, err := page.Has(sel)
		if err != nil {
			return nil, wrapPageErr(err)
		}
		if !has {
			continue
		}
		if visible, err := el.Visible(); err == nil && !visible {
			// File inputs are hidden by design; everything else must be
			// on screen to be usable.
			if role != RoleFileInput {
				continue
			}
		}
		d.log.Debug("control resolved", zap.String("role", string(role)), zap.String("selector", sel))
		return el, nil
	}
	return nil, &ElementNotFoundError{Role: role}
}

// Has probes for a role without waiting.
func (d *Driver) Has(ctx context.Context, role Role) bool {
	_, err := d.FindControl(ctx, role)
	return err == nil
}

// WaitControl polls for a role to appear within the timeout.
func (d *Driver) WaitControl(ctx context.Context, role Role, timeout time.Duration) (*rod.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, err := d.FindControl(ctx, role)
		if err == nil {
			return el, nil
		}
		var notFound *ElementNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		if err := sleepCtx(ctx, 150*time.Millisecond); err != nil {
			return nil, err
		}
	}
}

// FieldAt returns the composer text field at the given thread position.
// Fields are addressed positionally because focus can drift mid-thread.
func (d *Driver) FieldAt(ctx context.Context, index int) (*rod.Element, error) {
	page := d.page.Context(ctx)
	selectors := []string{
		fmt.Sprintf(`div[data-testid="tweetTextarea_%d"]`, index),
		fmt.Sprintf(`div[role="dialog"] div[role="textbox"]:nth-of-type(%d)`, index+1),
	}
	for _, sel := range selectors {
		has, el, err := page.Has(sel)
		if err != nil {
			return nil, wrapPageErr(err)
		}
		if has {
			return el, nil
		}
	}
	return nil, &ElementNotFoundError{Role: RoleComposerField}
}

// ToastText returns the text of any visible toast/alert, or "".
func (d *Driver) ToastText(ctx context.Context) string {
	el, err := d.FindControl(ctx, RoleDuplicateToast)
	if err != nil {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

// IsDuplicateNotice reports whether toast text matches a known
// duplicate-content rejection phrase.
func IsDuplicateNotice(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range duplicatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// wrapPageErr converts rod/CDP target-loss errors into
// ContextInvalidatedError so the orchestrator can force a new tab.
func wrapPageErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"target closed",
		"session closed",
		"cannot find context",
		"context is destroyed",
		"no such target",
		"websocket: close",
	} {
		if strings.Contains(msg, marker) {
			return &ContextInvalidatedError{Err: err}
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
