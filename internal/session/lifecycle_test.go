package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/browser/browsertest"
	"github.com/shehryarbajwa/browserbase-control/internal/hub"
	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/internal/profile"
	"github.com/shehryarbajwa/browserbase-control/internal/store"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// holdFirstLaunch blocks the first launch until the returned release func runs
func holdFirstLaunch(l *browsertest.Launcher) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	l.Configure = func(p *browsertest.Page) {
		once.Do(func() {
			close(in)
			<-gate
		})
	}
	return in, func() { close(gate) }
}

func TestCloseDuringLaunchStopsTheBrowser(t *testing.T) {
	f := newFixture(t, Options{MaxPerCampaign: 1})
	entered, release := holdFirstLaunch(f.launcher)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.reg.Create(context.Background(), models.CreateSessionRequest{SessionToken: "tok", CampaignID: "camp"}, models.OriginContext{})
		errCh <- err
	}()

	<-entered
	assert.True(t, f.reg.Close("tok"))
	release()

	err := <-errCh
	assert.ErrorIs(t, err, ErrPageUnavailable)
	first := f.launcher.Pages()[0]
	assert.True(t, first.Closed(), "a browser launched for a closed session must be stopped")
	_, ok := f.reg.Lookup("tok")
	assert.False(t, ok)

	// the campaign's only slot was given back
	info := f.create(t, "tok")
	assert.Equal(t, models.StatusActive, info.Status)
}

func TestActionWhileLaunchingIsPageUnavailable(t *testing.T) {
	f := newFixture(t, Options{})
	entered, release := holdFirstLaunch(f.launcher)
	v := &viewer{id: "v"}
	f.hub.Join("tok", v)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.reg.Create(context.Background(), models.CreateSessionRequest{SessionToken: "tok", CampaignID: "camp"}, models.OriginContext{})
	}()
	<-entered

	result, err := f.reg.ExecuteAction(context.Background(), "tok", "click", map[string]any{"selector": "#go"}, "c-9")
	assert.ErrorIs(t, err, ErrPageUnavailable)
	assert.False(t, result.Success)

	events := v.ofType(models.EventActionResult)
	require.Len(t, events, 1)
	assert.Equal(t, "c-9", events[0].CorrelationID)

	release()
	<-done
}

func TestInstrumentationReportsAreNotNetworkCaptures(t *testing.T) {
	f := newFixture(t, Options{ReportBase: "http://127.0.0.1:8080"})
	f.create(t, "tok")
	pg := f.lastPage(t)

	pg.Hooks.OnRequest(browser.Request{
		Method:      "POST",
		URL:         "http://127.0.0.1:8080/v1/sessions/tok/report/form",
		ContentType: "text/plain;charset=UTF-8",
		Body:        []byte(`{"formData":{"email":"foo@bar.com","password":"hunter2"},"url":"https://login.example.com/"}`),
	})

	h, ok := f.reg.Handle("tok")
	require.True(t, ok)
	assert.Empty(t, h.Credentials())

	// the page's own submission is still captured with an empty auth host list
	pg.Hooks.OnRequest(browser.Request{
		Method:      "POST",
		URL:         "https://login.example.com/session",
		ContentType: "application/x-www-form-urlencoded",
		Body:        []byte("email=foo@bar.com&password=hunter2"),
	})
	creds := h.Credentials()
	require.Len(t, creds, 1)
	assert.Equal(t, "https://login.example.com/session", creds[0].SourceURL)
}

func TestCredentialsAreStoredInCaptureOrder(t *testing.T) {
	f := newFixture(t, Options{})
	f.create(t, "tok")

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, f.reg.ReportInput(context.Background(), "tok", InputReport{
			FieldType: "password",
			Name:      "password",
			Value:     fmt.Sprintf("secret-%02d", i),
			URL:       "https://login.example.com/",
		}))
	}
	require.NoError(t, f.reg.Shutdown(context.Background()))

	stored := f.store.Credentials("tok")
	require.Len(t, stored, n)
	for i, c := range stored {
		assert.Equal(t, fmt.Sprintf("secret-%02d", i), c.Password)
		assert.Equal(t, models.CaptureInput, c.CaptureMethod)
	}
}

func TestRestoreSeedsSavedProfile(t *testing.T) {
	profiles, err := profile.NewStore(t.TempDir())
	require.NoError(t, err)
	launcher := &browsertest.Launcher{}
	mem := store.NewMemory()
	reg := NewRegistry(Deps{
		Launcher:    launcher,
		Records:     mem,
		Credentials: mem,
		Profiles:    profiles,
		Hub:         hub.New(),
		Metrics:     metrics.New(),
	}, Options{
		TargetURLs: []string{"https://login.example.com/"},
		DataDir:    t.TempDir(),
	})
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	_, err = reg.Create(context.Background(), models.CreateSessionRequest{SessionToken: "tok", CampaignID: "camp"}, models.OriginContext{})
	require.NoError(t, err)
	first := launcher.Pages()[0]
	require.True(t, filepath.IsAbs(first.DataDir))
	require.NoError(t, os.WriteFile(filepath.Join(first.DataDir, "Cookies"), []byte("sid=1"), 0644))

	require.True(t, reg.Close("tok"))
	assert.True(t, profiles.Has("tok"))

	info, err := reg.Access(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, info.Status)

	pages := launcher.Pages()
	require.Len(t, pages, 2)
	got, err := os.ReadFile(filepath.Join(pages[1].DataDir, "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "sid=1", string(got))
}
