// Package action translates remote-control commands into page operations.
package action

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidParams = errors.New("invalid action parameters")
)

// Command names accepted by Parse
const (
	NameClick      = "click"
	NameType       = "type"
	NameKey        = "key"
	NameClear      = "clear"
	NameNavigate   = "navigate"
	NameScroll     = "scroll"
	NameScreenshot = "screenshot"
	NameGetURL     = "getUrl"
	NameGetTitle   = "getTitle"
	NameFocus      = "focus"
)

// Action is one remote-control command. The set of implementations is closed.
type Action interface {
	Name() string
	apply(ctx context.Context, p browser.Page) (any, error)
}

// Click presses an element by selector, or the viewport at X/Y when Selector is empty
type Click struct {
	Selector string
	X, Y     float64
}

func (Click) Name() string { return NameClick }

func (a Click) apply(ctx context.Context, p browser.Page) (any, error) {
	if a.Selector != "" {
		return nil, p.Click(ctx, a.Selector)
	}
	return nil, p.ClickAt(ctx, a.X, a.Y)
}

// Type enters text into Selector, or into whatever has focus when Selector is empty
type Type struct {
	Selector string
	Text     string
}

func (Type) Name() string { return NameType }

func (a Type) apply(ctx context.Context, p browser.Page) (any, error) {
	if a.Selector != "" {
		return nil, p.Type(ctx, a.Selector, a.Text)
	}
	return nil, p.InsertText(ctx, a.Text)
}

// Key presses a named key such as "Enter", or types a literal one
type Key struct {
	Key string
}

func (Key) Name() string { return NameKey }

func (a Key) apply(ctx context.Context, p browser.Page) (any, error) {
	return nil, p.PressKey(ctx, a.Key)
}

type Clear struct {
	Selector string
}

func (Clear) Name() string { return NameClear }

func (a Clear) apply(ctx context.Context, p browser.Page) (any, error) {
	return nil, p.Clear(ctx, a.Selector)
}

type Navigate struct {
	URL string
}

func (Navigate) Name() string { return NameNavigate }

func (a Navigate) apply(ctx context.Context, p browser.Page) (any, error) {
	loc, err := p.Navigate(ctx, a.URL)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": loc}, nil
}

// Scroll moves the viewport by a pixel offset
type Scroll struct {
	DeltaX, DeltaY float64
}

func (Scroll) Name() string { return NameScroll }

func (a Scroll) apply(ctx context.Context, p browser.Page) (any, error) {
	return nil, p.Scroll(ctx, a.DeltaX, a.DeltaY)
}

type Screenshot struct {
	Fast bool
}

func (Screenshot) Name() string { return NameScreenshot }

func (a Screenshot) apply(ctx context.Context, p browser.Page) (any, error) {
	opts := browser.ScreenshotOptions{Fast: a.Fast}
	buf, err := p.Screenshot(ctx, opts)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"contentType": opts.ContentType(),
		"image":       base64.StdEncoding.EncodeToString(buf),
	}, nil
}

type GetURL struct{}

func (GetURL) Name() string { return NameGetURL }

func (GetURL) apply(ctx context.Context, p browser.Page) (any, error) {
	loc, err := p.Location(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"url": loc}, nil
}

type GetTitle struct{}

func (GetTitle) Name() string { return NameGetTitle }

func (GetTitle) apply(ctx context.Context, p browser.Page) (any, error) {
	title, err := p.Title(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"title": title}, nil
}

type Focus struct {
	Selector string
}

func (Focus) Name() string { return NameFocus }

func (a Focus) apply(ctx context.Context, p browser.Page) (any, error) {
	return nil, p.Focus(ctx, a.Selector)
}

// Run applies a parsed action. The result is always populated; the error is
// returned alongside it so callers can react to an unavailable page.
func Run(ctx context.Context, p browser.Page, a Action) (models.ActionResult, error) {
	data, err := a.apply(ctx, p)
	if err != nil {
		return models.ActionResult{
			Success: false,
			Message: fmt.Sprintf("%s failed: %v", a.Name(), err),
		}, err
	}
	return models.ActionResult{Success: true, Data: data}, nil
}

// Execute parses and runs a command. Every failure is reported in the result;
// failures raised by the page are also returned so the caller can tell a dead
// page from a bad command.
func Execute(ctx context.Context, p browser.Page, name string, params map[string]any) (models.ActionResult, error) {
	a, err := Parse(name, params)
	if err != nil {
		return models.ActionResult{Success: false, Message: err.Error()}, nil
	}
	return Run(ctx, p, a)
}

// Normalize maps accepted spellings onto canonical command names
func Normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "click":
		return NameClick
	case "type", "input":
		return NameType
	case "key", "press", "keypress":
		return NameKey
	case "clear":
		return NameClear
	case "navigate", "goto":
		return NameNavigate
	case "scroll":
		return NameScroll
	case "screenshot":
		return NameScreenshot
	case "geturl", "url":
		return NameGetURL
	case "gettitle", "title":
		return NameGetTitle
	case "focus":
		return NameFocus
	}
	return name
}
