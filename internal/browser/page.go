package browser

import (
	"context"
	"errors"
)

var (
	// ErrPageUnavailable is returned by every primitive once the page is closed,
	// crashed or detached from its browser process.
	ErrPageUnavailable = errors.New("page unavailable")
)

// Request is an outgoing request observed on the controlled page
type Request struct {
	URL         string
	Method      string
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Hooks receive events raised by the browser process, in the order it raises them.
// Hooks run on the browser's event loop and must not block.
type Hooks struct {
	OnNavigate func(url string)
	OnRequest  func(req Request)
}

// ScreenshotOptions selects the capture mode
type ScreenshotOptions struct {
	// Fast trades quality for speed: JPEG at reduced quality instead of PNG.
	Fast bool
}

// ContentType returns the MIME type of captures taken with these options
func (o ScreenshotOptions) ContentType() string {
	if o.Fast {
		return "image/jpeg"
	}
	return "image/png"
}

// Page is one automatable page inside one browser process.
//
// The context passed to each primitive only contributes its deadline; cancelling
// it does not abort an in-flight call. Closing the page does.
type Page interface {
	Navigate(ctx context.Context, url string) (string, error)
	LoadPlaceholder(ctx context.Context, html string) error
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	Evaluate(ctx context.Context, script string, out any) error

	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	Type(ctx context.Context, selector, text string) error
	InsertText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	Clear(ctx context.Context, selector string) error
	Focus(ctx context.Context, selector string) error
	Scroll(ctx context.Context, dx, dy float64) error

	DebuggingURL() string
	UserDataDir() string
	// Done is closed when the page is closed or its browser process goes away.
	Done() <-chan struct{}
	Close() error
}

// LaunchOptions configures a single browser launch
type LaunchOptions struct {
	SessionID string
	// Minimal selects the reduced configuration used as a launch fallback.
	Minimal        bool
	UserDataDir    string
	ViewportWidth  int
	ViewportHeight int
	// InitScripts are evaluated on every new document before any page script.
	InitScripts []string
	Hooks       Hooks
}

// Launcher starts browser processes. The context bounds startup only; the
// launched process lives until the returned Page is closed.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}
