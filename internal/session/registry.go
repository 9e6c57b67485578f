// Package session owns the lifecycle of browser-control sessions: creation,
// restoration after restart, credential capture, remote control and teardown.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/intercept"
	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/internal/navigation"
	"github.com/shehryarbajwa/browserbase-control/internal/retry"
	"github.com/shehryarbajwa/browserbase-control/internal/store"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// Close reasons, reported in metrics
const (
	reasonRequested    = "requested"
	reasonExpired      = "expired"
	reasonDisconnected = "disconnected"
	reasonUnavailable  = "page_unavailable"
	reasonShutdown     = "shutdown"
)

// Broadcaster delivers events to the viewers of a session
type Broadcaster interface {
	Broadcast(token string, ev models.Event) int
	Count(token string) int
	CloseGroup(token string) int
}

// ProfileStore keeps browser user-data directories between launches
type ProfileStore interface {
	Has(token string) bool
	Save(token, userDataDir string) error
	Load(token, dest string) error
}

// Options tune the registry
type Options struct {
	// TargetURLs are the default navigation candidates, in priority order
	TargetURLs []string
	// AuthHosts limits network capture to these hosts; empty inspects every host
	AuthHosts []string
	// ReportBase is the address injected instrumentation reports to; empty disables it
	ReportBase        string
	DataDir           string
	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	MaxAge            time.Duration
	MaxPerCampaign    int64
	ViewportWidth     int
	ViewportHeight    int
}

// Deps are the collaborators a registry drives. Profiles may be nil.
type Deps struct {
	Launcher    browser.Launcher
	Records     store.RecordStore
	Credentials store.CredentialSink
	Profiles    ProfileStore
	Hub         Broadcaster
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Registry is the authoritative map from session token to SessionHandle
type Registry struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*SessionHandle

	slotsMu sync.Mutex
	slots   map[string]*semaphore.Weighted

	restores    singleflight.Group
	credentials *credentialWriter

	now func() time.Time
}

func NewRegistry(deps Deps, opts Options) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.MaxPerCampaign <= 0 {
		opts.MaxPerCampaign = 10
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 45 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = navigation.DefaultAttemptTimeout
	}
	if opts.DataDir != "" {
		if abs, err := filepath.Abs(opts.DataDir); err == nil {
			opts.DataDir = abs
		}
	}

	r := &Registry{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger.Named("sessions"),
		sessions: make(map[string]*SessionHandle),
		slots:    make(map[string]*semaphore.Weighted),
		now:      time.Now,
	}
	if deps.Credentials != nil {
		r.credentials = newCredentialWriter(deps.Credentials, r.logger)
	}
	return r
}

type launchProfile struct {
	name    string
	minimal bool
}

var (
	standardProfiles = []launchProfile{{name: "standard"}, {name: "minimal", minimal: true}}
	restoreProfiles  = []launchProfile{{name: "standard"}}
)

// plan describes one attempt at bringing a session up
type plan struct {
	token      string
	campaignID string
	origin     models.OriginContext
	targets    []string
	authHosts  []string
	status     models.SessionStatus
	profiles   []launchProfile
	path       string
	// loadProfile seeds the user-data dir from the saved profile
	loadProfile bool
	// persist writes the durable record once the browser is up
	persist bool
}

// Create launches a new session. It fails with ErrSessionExists when the token
// already has a live session.
func (r *Registry) Create(ctx context.Context, req models.CreateSessionRequest, origin models.OriginContext) (models.SessionInfo, error) {
	if req.CampaignID == "" {
		return models.SessionInfo{}, fmt.Errorf("%w: campaignId is required", ErrInvalidRequest)
	}
	token := req.SessionToken
	if token == "" {
		token = uuid.NewString()
	}

	targets := req.TargetURLs
	if len(targets) == 0 {
		targets = r.opts.TargetURLs
	}
	authHosts := req.AuthHosts
	if len(authHosts) == 0 {
		authHosts = r.opts.AuthHosts
	}

	return r.start(ctx, plan{
		token:      token,
		campaignID: req.CampaignID,
		origin:     origin,
		targets:    targets,
		authHosts:  authHosts,
		status:     models.StatusLaunching,
		profiles:   standardProfiles,
		path:       metrics.StartCreate,
		persist:    true,
	})
}

func (r *Registry) start(ctx context.Context, p plan) (models.SessionInfo, error) {
	now := r.now()
	h := &SessionHandle{
		token:        p.token,
		campaignID:   p.campaignID,
		origin:       p.origin,
		authHosts:    p.authHosts,
		createdAt:    now,
		status:       p.status,
		lastActivity: now,
	}

	// Reserve the token before launching so only one browser can exist per token.
	r.mu.Lock()
	if _, exists := r.sessions[p.token]; exists {
		r.mu.Unlock()
		return models.SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionExists, p.token)
	}
	r.sessions[p.token] = h
	r.mu.Unlock()

	release, err := r.acquireSlot(p.campaignID)
	if err != nil {
		r.unreserve(h)
		return models.SessionInfo{}, err
	}

	pg, err := r.launch(ctx, h, p)
	if err != nil {
		release()
		r.unreserve(h)
		r.deps.Metrics.LaunchFailures.Inc()
		r.logger.Error("browser launch failed", logging.Token(p.token), zap.String("path", p.path), zap.Error(err))
		return models.SessionInfo{}, fmt.Errorf("%w: %v", ErrLaunchFailure, err)
	}

	h.mu.Lock()
	if h.status == models.StatusClosed {
		// closed while launching; closeHandle found no page to stop
		h.mu.Unlock()
		if err := pg.Close(); err != nil {
			r.logger.Warn("failed to close browser", logging.Token(p.token), zap.Error(err))
		}
		release()
		return models.SessionInfo{}, fmt.Errorf("%w: closed during launch", ErrPageUnavailable)
	}
	h.page = pg
	h.release = release
	h.mu.Unlock()

	// The browser now outlives this request; later steps must not be cut short by it.
	bg := context.WithoutCancel(ctx)

	if p.persist {
		rec := models.PersistedSessionRecord{SessionToken: p.token, CampaignID: p.campaignID, CreatedAt: now}
		if _, err := r.deps.Records.Put(bg, rec); err != nil {
			r.logger.Error("failed to persist session record", logging.Token(p.token), zap.Error(err))
		}
	}

	outcome := navigation.Resolve(bg, pg, navigation.Policy{
		Candidates:     p.targets,
		AttemptTimeout: r.opts.NavigationTimeout,
	}, r.logger.With(logging.Token(p.token)))
	if outcome.Placeholder {
		r.deps.Metrics.Placeholders.Inc()
	}

	h.mu.Lock()
	if h.status == models.StatusClosed {
		// closed while navigating
		h.mu.Unlock()
		return models.SessionInfo{}, fmt.Errorf("%w: closed during startup", ErrPageUnavailable)
	}
	h.status = models.StatusActive
	if outcome.Placeholder || h.currentURL == "" {
		h.currentURL = outcome.URL
	}
	h.mu.Unlock()

	go r.watch(h, pg)

	r.deps.Metrics.SessionStarts.WithLabelValues(p.path).Inc()
	r.deps.Metrics.SessionsActive.Inc()
	r.logger.Info("session active",
		logging.Token(p.token),
		zap.String("campaign", p.campaignID),
		zap.String("path", p.path),
		zap.String("url", outcome.URL),
		zap.Bool("placeholder", outcome.Placeholder))

	info := h.info(r.deps.Hub.Count(p.token))
	r.broadcast(p.token, models.NewEvent(models.EventSessionInfo, p.token, info))
	return info, nil
}

// launch walks the plan's launch profiles until a browser comes up
func (r *Registry) launch(ctx context.Context, h *SessionHandle, p plan) (browser.Page, error) {
	userDataDir, err := r.prepareUserData(p)
	if err != nil {
		return nil, err
	}

	var initScripts []string
	if r.opts.ReportBase != "" {
		script, err := intercept.InstrumentationScript(r.opts.ReportBase, p.token)
		if err != nil {
			return nil, fmt.Errorf("render instrumentation: %w", err)
		}
		initScripts = append(initScripts, script)
	}

	hooks := browser.Hooks{
		OnNavigate: func(url string) { r.onNavigate(h, url) },
		OnRequest:  func(req browser.Request) { r.onRequest(h, req) },
	}

	return retry.FirstSuccess(ctx, retry.Policy{AttemptTimeout: r.opts.LaunchTimeout}, p.profiles,
		func(ctx context.Context, lp launchProfile) (browser.Page, error) {
			opts := browser.LaunchOptions{
				SessionID:      p.token,
				Minimal:        lp.minimal,
				ViewportWidth:  r.opts.ViewportWidth,
				ViewportHeight: r.opts.ViewportHeight,
				InitScripts:    initScripts,
				Hooks:          hooks,
			}
			if !lp.minimal {
				opts.UserDataDir = userDataDir
			}
			pg, err := r.deps.Launcher.Launch(ctx, opts)
			if err != nil {
				r.logger.Warn("launch profile failed", logging.Token(p.token), zap.String("profile", lp.name), zap.Error(err))
				return nil, fmt.Errorf("%s profile: %w", lp.name, err)
			}
			return pg, nil
		})
}

// prepareUserData resets the session's user-data dir, seeding it from a saved
// profile when the plan asks for one
func (r *Registry) prepareUserData(p plan) (string, error) {
	if r.opts.DataDir == "" {
		return "", nil
	}
	dir := filepath.Join(r.opts.DataDir, base64.RawURLEncoding.EncodeToString([]byte(p.token)))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("reset user data dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create user data dir: %w", err)
	}
	if p.loadProfile && r.deps.Profiles != nil {
		if !r.deps.Profiles.Has(p.token) {
			r.logger.Info("no saved profile to restore", logging.Token(p.token))
		} else if err := r.deps.Profiles.Load(p.token, dir); err != nil {
			r.logger.Warn("saved profile not restored", logging.Token(p.token), zap.Error(err))
		}
	}
	return dir, nil
}

func (r *Registry) unreserve(h *SessionHandle) {
	r.mu.Lock()
	if r.sessions[h.token] == h {
		delete(r.sessions, h.token)
	}
	r.mu.Unlock()
}

// acquireSlot takes one of the campaign's concurrent session slots
func (r *Registry) acquireSlot(campaignID string) (func(), error) {
	r.slotsMu.Lock()
	sem, ok := r.slots[campaignID]
	if !ok {
		sem = semaphore.NewWeighted(r.opts.MaxPerCampaign)
		r.slots[campaignID] = sem
	}
	r.slotsMu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: campaign %s", ErrCapacity, campaignID)
	}
	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

// watch closes the session when its browser goes away
func (r *Registry) watch(h *SessionHandle, pg browser.Page) {
	<-pg.Done()
	if r.closeHandle(h, reasonDisconnected) {
		r.logger.Warn("browser disconnected, session closed", logging.Token(h.token))
	}
}

func (r *Registry) get(token string) (*SessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[token]
	return h, ok
}

// Lookup returns the in-memory session for token without restoring it
func (r *Registry) Lookup(token string) (models.SessionInfo, bool) {
	h, ok := r.get(token)
	if !ok {
		return models.SessionInfo{}, false
	}
	return h.info(r.deps.Hub.Count(token)), true
}

// Handle exposes the live handle for token
func (r *Registry) Handle(token string) (*SessionHandle, bool) {
	return r.get(token)
}

// List returns every in-memory session
func (r *Registry) List() []models.SessionInfo {
	r.mu.RLock()
	handles := make([]*SessionHandle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]models.SessionInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.info(r.deps.Hub.Count(h.token)))
	}
	return out
}

// Access returns the session for token, restoring it from its durable record
// when it is not in memory. Concurrent accesses to one token share a restore.
func (r *Registry) Access(ctx context.Context, token string) (models.SessionInfo, error) {
	if info, ok := r.Lookup(token); ok {
		return info, nil
	}

	v, err, _ := r.restores.Do(token, func() (any, error) {
		// a racing access may have finished restoring already
		if info, ok := r.Lookup(token); ok {
			return info, nil
		}
		return r.restore(context.WithoutCancel(ctx), token)
	})
	if err != nil {
		return models.SessionInfo{}, err
	}
	return v.(models.SessionInfo), nil
}

func (r *Registry) restore(ctx context.Context, token string) (models.SessionInfo, error) {
	rec, err := r.deps.Records.Get(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return models.SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	if err != nil {
		return models.SessionInfo{}, fmt.Errorf("load session record: %w", err)
	}

	base := plan{
		token:      rec.SessionToken,
		campaignID: rec.CampaignID,
		targets:    r.opts.TargetURLs,
		authHosts:  r.opts.AuthHosts,
	}
	relaunch := base
	relaunch.status = models.StatusRestoring
	relaunch.profiles = restoreProfiles
	relaunch.path = metrics.StartRestore
	relaunch.loadProfile = true

	fresh := base
	fresh.status = models.StatusLaunching
	fresh.profiles = standardProfiles
	fresh.path = metrics.StartRestoreFallback

	r.logger.Info("restoring session from record", logging.Token(token), zap.String("campaign", rec.CampaignID))
	info, err := retry.FirstSuccess(ctx, retry.Policy{}, []plan{relaunch, fresh},
		func(ctx context.Context, p plan) (models.SessionInfo, error) {
			info, err := r.start(ctx, p)
			if err != nil {
				r.logger.Warn("restore step failed", logging.Token(token), zap.String("path", p.path), zap.Error(err))
			}
			return info, err
		})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) && len(exhausted.Attempts) > 0 {
			return models.SessionInfo{}, exhausted.Attempts[len(exhausted.Attempts)-1]
		}
		return models.SessionInfo{}, err
	}
	return info, nil
}

// Close terminates the session's browser. It reports false if there was no
// live session for token.
func (r *Registry) Close(token string) bool {
	h, ok := r.get(token)
	if !ok {
		return false
	}
	return r.closeHandle(h, reasonRequested)
}

func (r *Registry) closeHandle(h *SessionHandle, reason string) bool {
	h.mu.Lock()
	if h.status == models.StatusClosed {
		h.mu.Unlock()
		return false
	}
	wasActive := h.status == models.StatusActive
	h.status = models.StatusClosed
	pg := h.page
	release := h.release
	h.page = nil
	h.release = nil
	h.mu.Unlock()

	r.unreserve(h)

	if pg != nil {
		if err := pg.Close(); err != nil {
			r.logger.Warn("failed to close browser", logging.Token(h.token), zap.Error(err))
		}
		if dir := pg.UserDataDir(); dir != "" && r.deps.Profiles != nil {
			if err := r.deps.Profiles.Save(h.token, dir); err != nil {
				r.logger.Warn("failed to save browser profile", logging.Token(h.token), zap.Error(err))
			}
		}
	}
	if release != nil {
		release()
	}
	if wasActive {
		r.deps.Metrics.SessionsActive.Dec()
	}
	r.deps.Metrics.SessionsClosed.WithLabelValues(reason).Inc()

	r.broadcast(h.token, models.NewEvent(models.EventSessionClosed, h.token, map[string]string{"reason": reason}))
	r.deps.Hub.CloseGroup(h.token)

	r.logger.Info("session closed", logging.Token(h.token), zap.String("reason", reason))
	return true
}

// Sweep closes every session created longer than MaxAge before now,
// regardless of viewers or activity. It returns the closed tokens.
func (r *Registry) Sweep(now time.Time) []string {
	if r.opts.MaxAge <= 0 {
		return nil
	}

	r.mu.RLock()
	var expired []*SessionHandle
	for _, h := range r.sessions {
		if now.Sub(h.createdAt) > r.opts.MaxAge {
			expired = append(expired, h)
		}
	}
	r.mu.RUnlock()

	var closed []string
	for _, h := range expired {
		if r.closeHandle(h, reasonExpired) {
			closed = append(closed, h.token)
		}
	}
	return closed
}

// Shutdown closes every session in parallel and waits for pending credential writes
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	handles := make([]*SessionHandle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			r.closeHandle(h, reasonShutdown)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		err := g.Wait()
		if r.credentials != nil {
			r.credentials.close()
			<-r.credentials.done
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DebuggingURL returns the raw DevTools address of the session's browser
func (r *Registry) DebuggingURL(token string) (string, error) {
	h, ok := r.get(token)
	if !ok {
		return "", ErrSessionNotFound
	}
	pg, ok := h.livePage()
	if !ok {
		return "", ErrPageUnavailable
	}
	return pg.DebuggingURL(), nil
}

func (r *Registry) broadcast(token string, ev models.Event) int {
	r.deps.Metrics.Broadcasts.WithLabelValues(string(ev.Type)).Inc()
	return r.deps.Hub.Broadcast(token, ev)
}

// pageFailed closes the session in the background when err means the page is gone
func (r *Registry) pageFailed(h *SessionHandle, err error) {
	if errors.Is(err, browser.ErrPageUnavailable) {
		go r.closeHandle(h, reasonUnavailable)
	}
}
