package engine

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ComposerController opens, resets, and classifies the content-entry
// surface inside a tab. It also serves as the verifier's ComposerSurface.
type ComposerController struct {
	driver      *Driver
	log         *zap.Logger
	openTimeout time.Duration
}

func NewComposerController(driver *Driver, log *zap.Logger) *ComposerController {
	return &ComposerController{
		driver:      driver,
		log:         log.Named("composer"),
		openTimeout: 8 * time.Second,
	}
}

// Open clicks the compose control and waits for the modal composer. It is
// the caller's job to dismiss any orphan first.
func (c *ComposerController) Open(ctx context.Context) error {
	btn, err := c.driver.FindControl(ctx, RoleComposeButton)
	if err != nil {
		return err
	}
	if err := btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return wrapPageErr(err)
	}
	if _, err := c.driver.WaitControl(ctx, RoleComposerField, c.openTimeout); err != nil {
		return err
	}
	c.log.Debug("composer opened")
	return nil
}

// DetectState distinguishes a genuine modal composer from the always
// present inline field on the home feed. A bare "field exists" check false
// positives on the inline composer, so the field must be nested inside a
// dialog surface to count.
func (c *ComposerController) DetectState(ctx context.Context) (ComposerState, error) {
	if !c.driver.Has(ctx, RoleComposerDialog) {
		return ComposerClosed, nil
	}
	field, err := c.driver.FindControl(ctx, RoleComposerField)
	if err != nil {
		return ComposerClosed, nil
	}
	text, err := field.Text()
	if err != nil {
		return ComposerOpen, wrapPageErr(err)
	}
	if strings.TrimSpace(text) != "" {
		return ComposerOrphaned, nil
	}
	return ComposerOpen, nil
}

// DismissOrphan clears any leftover composer from a previous failed
// attempt. Runs at the start of every attempt as a precondition; a no-op
// when nothing is open.
func (c *ComposerController) DismissOrphan(ctx context.Context) error {
	state, err := c.DetectState(ctx)
	if err != nil {
		return err
	}
	if state == ComposerClosed {
		return nil
	}
	c.log.Info("dismissing leftover composer", zap.String("state", state.String()))

	if state == ComposerOrphaned {
		if field, err := c.Field(ctx, 0); err == nil {
			_ = field.Clear(ctx)
		}
	}
	return c.Dismiss(ctx)
}

// Reset is the recovery primitive: close the composer and reopen it fresh.
// Preferred over repeated clears because selection+delete can corrupt the
// editor's internal state.
func (c *ComposerController) Reset(ctx context.Context) (EditField, error) {
	if err := c.Dismiss(ctx); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return nil, err
	}
	if err := c.Open(ctx); err != nil {
		return nil, err
	}
	c.log.Info("composer reset")
	return c.Field(ctx, 0)
}

// Field returns the text field at the given thread position.
func (c *ComposerController) Field(ctx context.Context, index int) (EditField, error) {
	el, err := c.driver.FieldAt(ctx, index)
	if err != nil {
		return nil, err
	}
	return newRodField(el, c.driver.Page()), nil
}

// AddEntry appends a new thread entry field below the current ones.
func (c *ComposerController) AddEntry(ctx context.Context) error {
	btn, err := c.driver.FindControl(ctx, RoleAddEntryButton)
	if err != nil {
		return err
	}
	return wrapPageErr(btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

// -- ComposerSurface (consumed by PublishVerifier) --

// IsOpen reports whether the modal composer is still on screen.
func (c *ComposerController) IsOpen(ctx context.Context) (bool, error) {
	state, err := c.DetectState(ctx)
	if err != nil {
		return false, err
	}
	return state != ComposerClosed, nil
}

// PublishEnabled reports whether the publish control accepts a click.
// Enablement can lag text-commit by a few seconds.
func (c *ComposerController) PublishEnabled(ctx context.Context) (bool, error) {
	btn, err := c.driver.FindControl(ctx, RolePublishButton)
	if err != nil {
		return false, err
	}
	res, err := btn.Context(ctx).Eval(`() => !(this.disabled || this.getAttribute('aria-disabled') === 'true')`)
	if err != nil {
		return false, wrapPageErr(err)
	}
	return res.Value.Bool(), nil
}

// ClickPublish issues one click on the publish control.
func (c *ComposerController) ClickPublish(ctx context.Context) error {
	btn, err := c.driver.FindControl(ctx, RolePublishButton)
	if err != nil {
		return err
	}
	return wrapPageErr(btn.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

// DuplicateWarningShown checks for the platform's duplicate-content toast.
func (c *ComposerController) DuplicateWarningShown(ctx context.Context) (bool, error) {
	return IsDuplicateNotice(c.driver.ToastText(ctx)), nil
}

// Dismiss closes the composer, accepting the platform's "discard draft"
// confirmation when it appears. Escape first; the close control is the
// fallback, since Escape is swallowed while a sub-surface (emoji picker,
// media menu) holds focus.
func (c *ComposerController) Dismiss(ctx context.Context) error {
	open, err := c.IsOpen(ctx)
	if err != nil || !open {
		return err
	}
	if err := c.driver.Page().Context(ctx).Keyboard.Press(input.Escape); err != nil {
		return wrapPageErr(err)
	}
	c.acceptDiscard(ctx)
	if err := sleepCtx(ctx, 300*time.Millisecond); err != nil {
		return err
	}

	open, err = c.IsOpen(ctx)
	if err != nil || !open {
		return err
	}
	closeBtn, err := c.driver.FindControl(ctx, RoleCloseComposer)
	if err != nil {
		return err
	}
	c.log.Debug("escape did not close composer, clicking close control")
	if err := closeBtn.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return wrapPageErr(err)
	}
	c.acceptDiscard(ctx)
	return sleepCtx(ctx, 300*time.Millisecond)
}

// acceptDiscard clicks through the discard-draft confirmation if the
// platform raises one. Best effort; absence of the sheet is the common case.
func (c *ComposerController) acceptDiscard(ctx context.Context) {
	confirm, err := c.driver.WaitControl(ctx, RoleDiscardConfirm, time.Second)
	if err != nil {
		return
	}
	if err := confirm.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err == nil {
		c.log.Debug("discard confirmation accepted")
	}
}
