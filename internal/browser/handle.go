package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const fastScreenshotQuality = 40

// Handle owns one browser process and the single tab the session drives.
// It is the chromedp-backed Page implementation.
type Handle struct {
	sessionID   string
	debugURL    string
	userDataDir string

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	teardown    func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	doneOnce  sync.Once
}

// start opens the tab, wires hooks and init scripts, and boots the process.
// ctx bounds startup only; the process is owned by allocCtx.
func start(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc, opts LaunchOptions, teardown func() error, logger *zap.Logger) (*Handle, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		logger.Debug("chromedp", zap.String("session", opts.SessionID), zap.String("detail", fmt.Sprintf(format, args...)))
	}))

	h := &Handle{
		sessionID:   opts.SessionID,
		userDataDir: opts.UserDataDir,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		teardown:    teardown,
		done:        make(chan struct{}),
	}

	chromedp.ListenTarget(tabCtx, h.listener(opts.Hooks))

	boot := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, script := range opts.InitScripts {
				if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
					return fmt.Errorf("inject init script: %w", err)
				}
			}
			return nil
		}),
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		boot = append(boot, chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)))
	}

	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Run(tabCtx, boot...)
	}()

	select {
	case err := <-errc:
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("browser: start: %w", err)
		}
	case <-ctx.Done():
		h.Close()
		return nil, fmt.Errorf("browser: start: %w", ctx.Err())
	}

	go func() {
		<-tabCtx.Done()
		h.markDone()
	}()

	return h, nil
}

func (h *Handle) listener(hooks Hooks) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" && hooks.OnNavigate != nil {
				hooks.OnNavigate(e.Frame.URL)
			}
		case *network.EventRequestWillBeSent:
			if e.Request != nil && hooks.OnRequest != nil {
				hooks.OnRequest(toRequest(e.Request))
			}
		case *inspector.EventTargetCrashed, *inspector.EventDetached:
			h.markDone()
		}
	}
}

func toRequest(r *network.Request) Request {
	req := Request{
		URL:     r.URL,
		Method:  r.Method,
		Headers: make(map[string]string, len(r.Headers)),
	}
	for k, v := range r.Headers {
		value := fmt.Sprint(v)
		req.Headers[k] = value
		if strings.EqualFold(k, "Content-Type") {
			req.ContentType = value
		}
	}
	for _, entry := range r.PostDataEntries {
		if entry == nil {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			req.Body = append(req.Body, decoded...)
		} else {
			req.Body = append(req.Body, entry.Bytes...)
		}
	}
	return req
}

func (h *Handle) markDone() {
	h.doneOnce.Do(func() {
		if h.done != nil {
			close(h.done)
		}
	})
}

// scoped derives a run context from the tab context that carries only the
// caller's deadline.
func (h *Handle) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(h.ctx, deadline)
	}
	return context.WithCancel(h.ctx)
}

func (h *Handle) run(ctx context.Context, actions ...chromedp.Action) error {
	if h.closed.Load() || h.ctx == nil {
		return ErrPageUnavailable
	}
	runCtx, cancel := h.scoped(ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if h.closed.Load() || h.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrPageUnavailable, err)
		}
		return err
	}
	return nil
}

func (h *Handle) Navigate(ctx context.Context, url string) (string, error) {
	var location string
	if err := h.run(ctx, chromedp.Navigate(url), chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (h *Handle) LoadPlaceholder(ctx context.Context, html string) error {
	return h.run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
	)
}

func (h *Handle) Location(ctx context.Context) (string, error) {
	var location string
	err := h.run(ctx, chromedp.Location(&location))
	return location, err
}

func (h *Handle) Title(ctx context.Context) (string, error) {
	var title string
	err := h.run(ctx, chromedp.Title(&title))
	return title, err
}

func (h *Handle) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	var buf []byte
	err := h.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if opts.Fast {
			params = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(fastScreenshotQuality)
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	return buf, err
}

func (h *Handle) Evaluate(ctx context.Context, script string, out any) error {
	return h.run(ctx, chromedp.Evaluate(script, out))
}

// Selector primitives use AtLeast(0) so a missing element fails fast
// instead of waiting for it to appear.

func (h *Handle) Click(ctx context.Context, selector string) error {
	return h.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.AtLeast(0)))
}

func (h *Handle) ClickAt(ctx context.Context, x, y float64) error {
	return h.run(ctx, chromedp.MouseClickXY(x, y))
}

func (h *Handle) Type(ctx context.Context, selector, text string) error {
	return h.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.AtLeast(0)))
}

func (h *Handle) InsertText(ctx context.Context, text string) error {
	return h.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (h *Handle) PressKey(ctx context.Context, key string) error {
	return h.run(ctx, chromedp.KeyEvent(KeySequence(key)))
}

func (h *Handle) Clear(ctx context.Context, selector string) error {
	return h.run(ctx, chromedp.Clear(selector, chromedp.ByQuery, chromedp.AtLeast(0)))
}

func (h *Handle) Focus(ctx context.Context, selector string) error {
	return h.run(ctx, chromedp.Focus(selector, chromedp.ByQuery, chromedp.AtLeast(0)))
}

func (h *Handle) Scroll(ctx context.Context, dx, dy float64) error {
	return h.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(%g, %g)", dx, dy), nil))
}

func (h *Handle) DebuggingURL() string { return h.debugURL }

func (h *Handle) UserDataDir() string { return h.userDataDir }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Close terminates the tab and the browser process exactly once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		if h.cancel != nil {
			h.cancel()
		}
		if h.allocCancel != nil {
			h.allocCancel()
		}
		if h.teardown != nil {
			h.closeErr = h.teardown()
		}
		h.markDone()
	})
	return h.closeErr
}
