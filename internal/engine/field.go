package engine

import (
	"context"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// EditField is the injector's view of one rich-text entry field. Each
// method is one primitive of the fallback chain; implementations insert at
// the cursor except SetDirect, which replaces the whole content.
type EditField interface {
	Focus(ctx context.Context) error
	Clear(ctx context.Context) error
	// SetDirect replaces the field content via DOM mutation (method 1).
	SetDirect(ctx context.Context, text string) error
	// Paste dispatches a synthetic clipboard paste carrying text (method 2).
	Paste(ctx context.Context, text string) error
	// DispatchInput commits text through editing input events (method 3).
	DispatchInput(ctx context.Context, text string) error
	// TypeChunk types a short run of characters at the cursor (method 4).
	TypeChunk(ctx context.Context, chunk string) error
	// ReadBack returns the field's current visible text.
	ReadBack(ctx context.Context) (string, error)
}

// rodField binds EditField to a live contenteditable element. The platform
// editor keeps internal state beside the DOM, which is why the primitives
// differ in how much of that state they update.
type rodField struct {
	el   *rod.Element
	page *rod.Page
}

func newRodField(el *rod.Element, page *rod.Page) *rodField {
	return &rodField{el: el, page: page}
}

func (f *rodField) Focus(ctx context.Context) error {
	return wrapPageErr(f.el.Context(ctx).Focus())
}

func (f *rodField) Clear(ctx context.Context) error {
	el := f.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return wrapPageErr(err)
	}
	if err := el.SelectAllText(); err != nil {
		return wrapPageErr(err)
	}
	return wrapPageErr(f.page.Context(ctx).Keyboard.Press(input.Backspace))
}

func (f *rodField) SetDirect(ctx context.Context, text string) error {
	_, err := f.el.Context(ctx).Eval(`(text) => {
		this.focus();
		this.textContent = text;
		this.dispatchEvent(new Event('input', { bubbles: true }));
	}`, text)
	return wrapPageErr(err)
}

func (f *rodField) Paste(ctx context.Context, text string) error {
	// A DataTransfer-backed ClipboardEvent sidesteps the user-gesture
	// restrictions of the async clipboard API.
	_, err := f.el.Context(ctx).Eval(`(text) => {
		this.focus();
		const dt = new DataTransfer();
		dt.setData('text/plain', text);
		const ev = new ClipboardEvent('paste', {
			clipboardData: dt,
			bubbles: true,
			cancelable: true,
		});
		this.dispatchEvent(ev);
	}`, text)
	return wrapPageErr(err)
}

func (f *rodField) DispatchInput(ctx context.Context, text string) error {
	_, err := f.el.Context(ctx).Eval(`(text) => {
		this.focus();
		if (document.execCommand('insertText', false, text)) return;
		const ev = new InputEvent('beforeinput', {
			inputType: 'insertText',
			data: text,
			bubbles: true,
			cancelable: true,
		});
		this.dispatchEvent(ev);
	}`, text)
	return wrapPageErr(err)
}

func (f *rodField) TypeChunk(ctx context.Context, chunk string) error {
	el := f.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return wrapPageErr(err)
	}
	return wrapPageErr(el.Input(chunk))
}

func (f *rodField) ReadBack(ctx context.Context) (string, error) {
	text, err := f.el.Context(ctx).Text()
	if err != nil {
		return "", wrapPageErr(err)
	}
	return text, nil
}

// fieldLen counts runes, not bytes; the acceptance ratio is defined over
// characters.
func fieldLen(s string) int { return utf8.RuneCountInString(s) }
