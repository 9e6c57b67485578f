// Package browsertest provides in-memory Page and Launcher implementations
// for exercising code that drives a browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// Call records one primitive invoked on a Page
type Call struct {
	Op   string
	Args []any
}

// Page is a scripted browser.Page. Navigations to URLs listed in Unreachable fail;
// every other URL lands on itself unless Redirects says otherwise.
type Page struct {
	mu          sync.Mutex
	Unreachable map[string]bool
	Redirects   map[string]string
	TitleText   string
	Image       []byte
	DebugURL    string
	DataDir     string
	Hooks       browser.Hooks

	location string
	calls    []Call
	closed   bool
	closes   int
	done     chan struct{}
}

// NewPage returns an open page sitting on the placeholder location
func NewPage() *Page {
	return &Page{
		Unreachable: map[string]bool{},
		Redirects:   map[string]string{},
		TitleText:   "fake",
		Image:       []byte{0x89, 'P', 'N', 'G'},
		location:    models.PlaceholderURL,
		done:        make(chan struct{}),
	}
}

func (p *Page) record(op string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return browser.ErrPageUnavailable
	}
	p.calls = append(p.calls, Call{Op: op, Args: args})
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) (string, error) {
	if err := p.record("navigate", url); err != nil {
		return "", err
	}
	p.mu.Lock()
	unreachable := p.Unreachable[url]
	target, redirected := p.Redirects[url]
	p.mu.Unlock()

	if unreachable {
		return "", fmt.Errorf("navigate %s: net::ERR_CONNECTION_REFUSED", url)
	}
	if !redirected {
		target = url
	}
	p.mu.Lock()
	p.location = target
	onNavigate := p.Hooks.OnNavigate
	p.mu.Unlock()
	if onNavigate != nil {
		onNavigate(target)
	}
	return target, nil
}

func (p *Page) LoadPlaceholder(ctx context.Context, html string) error {
	if err := p.record("placeholder"); err != nil {
		return err
	}
	p.mu.Lock()
	p.location = models.PlaceholderURL
	p.mu.Unlock()
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := p.record("location"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	if err := p.record("title"); err != nil {
		return "", err
	}
	return p.TitleText, nil
}

func (p *Page) Screenshot(ctx context.Context, opts browser.ScreenshotOptions) ([]byte, error) {
	if err := p.record("screenshot", opts.Fast); err != nil {
		return nil, err
	}
	return p.Image, nil
}

func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	return p.record("evaluate", script)
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.record("click", selector)
}

func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	return p.record("clickAt", x, y)
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	return p.record("type", selector, text)
}

func (p *Page) InsertText(ctx context.Context, text string) error {
	return p.record("insertText", text)
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	return p.record("key", key)
}

func (p *Page) Clear(ctx context.Context, selector string) error {
	return p.record("clear", selector)
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	return p.record("focus", selector)
}

func (p *Page) Scroll(ctx context.Context, dx, dy float64) error {
	return p.record("scroll", dx, dy)
}

func (p *Page) DebuggingURL() string { return p.DebugURL }

func (p *Page) UserDataDir() string { return p.DataDir }

func (p *Page) Done() <-chan struct{} { return p.done }

// Close marks the page unavailable. Only the first call has any effect.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	return nil
}

// Crash simulates the browser process going away underneath the page
func (p *Page) Crash() {
	_ = p.Close()
}

// Closed reports whether Close or Crash has been called
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Calls returns a copy of the recorded primitives
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// LastCall returns the most recent primitive, if any
func (p *Page) LastCall() (Call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return Call{}, false
	}
	return p.calls[len(p.calls)-1], true
}

// ErrLaunch is returned for launches the Launcher is scripted to refuse
var ErrLaunch = errors.New("browser failed to start")

// Launcher hands out fake pages. FailStandard and FailMinimal refuse the
// corresponding launch profile; Configure runs on each new page before it is returned.
type Launcher struct {
	mu           sync.Mutex
	FailStandard bool
	FailMinimal  bool
	// FailFirst refuses this many launches, whatever the profile
	FailFirst    int
	Configure    func(p *Page)

	launches []browser.LaunchOptions
	pages    []*Page
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.launches = append(l.launches, opts)
	if l.FailFirst > 0 {
		l.FailFirst--
		return nil, ErrLaunch
	}
	if (opts.Minimal && l.FailMinimal) || (!opts.Minimal && l.FailStandard) {
		return nil, ErrLaunch
	}

	p := NewPage()
	p.Hooks = opts.Hooks
	p.DataDir = opts.UserDataDir
	p.DebugURL = fmt.Sprintf("ws://127.0.0.1:9222/devtools/browser/%s", opts.SessionID)
	if l.Configure != nil {
		l.Configure(p)
	}
	l.pages = append(l.pages, p)
	return p, nil
}

// Launches returns the options of every launch attempt, failed ones included
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.LaunchOptions(nil), l.launches...)
}

// Pages returns every page handed out so far
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

// SetFail changes which launch profiles fail
func (l *Launcher) SetFail(standard, minimal bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FailStandard = standard
	l.FailMinimal = minimal
}
