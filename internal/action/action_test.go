package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browserbase-control/internal/browser"
	"github.com/shehryarbajwa/browserbase-control/internal/browser/browsertest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		action string
		params map[string]any
		want   Action
		err    error
	}{
		{"click by selector", "click", map[string]any{"selector": "#login"}, Click{Selector: "#login"}, nil},
		{"click by coordinate", "click", map[string]any{"x": 10.0, "y": "20"}, Click{X: 10, Y: 20}, nil},
		{"click without target", "click", map[string]any{"x": 10.0}, nil, ErrInvalidParams},
		{"type into focus", "type", map[string]any{"text": "hello"}, Type{Text: "hello"}, nil},
		{"type without text", "type", map[string]any{}, nil, ErrInvalidParams},
		{"key alias", "press", map[string]any{"key": "Enter"}, Key{Key: "Enter"}, nil},
		{"clear", "clear", map[string]any{"selector": "input[name=q]"}, Clear{Selector: "input[name=q]"}, nil},
		{"navigate relative url", "navigate", map[string]any{"url": "/login"}, nil, ErrInvalidParams},
		{"navigate", "navigate", map[string]any{"url": "https://example.com"}, Navigate{URL: "https://example.com"}, nil},
		{"scroll vertical only", "scroll", map[string]any{"deltaY": 300.0}, Scroll{DeltaY: 300}, nil},
		{"scroll without offset", "scroll", nil, nil, ErrInvalidParams},
		{"fast screenshot", "screenshot", map[string]any{"fast": true}, Screenshot{Fast: true}, nil},
		{"get url", "getUrl", nil, GetURL{}, nil},
		{"get title case insensitive", "GETTITLE", nil, GetTitle{}, nil},
		{"focus", "focus", map[string]any{"selector": "#pw"}, Focus{Selector: "#pw"}, nil},
		{"unknown", "bogus-action", nil, nil, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.action, tt.params)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteUnknownActionIsStructuredFailure(t *testing.T) {
	page := browsertest.NewPage()

	result, _ := Execute(context.Background(), page, "bogus-action", map[string]any{"x": 1})

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "unknown action")
	assert.Empty(t, page.Calls())
}

func TestExecuteDispatchesToPage(t *testing.T) {
	ctx := context.Background()
	page := browsertest.NewPage()

	result, _ := Execute(ctx, page, "click", map[string]any{"x": 5.0, "y": 7.0})
	require.True(t, result.Success)
	last, _ := page.LastCall()
	assert.Equal(t, browsertest.Call{Op: "clickAt", Args: []any{5.0, 7.0}}, last)

	result, _ = Execute(ctx, page, "type", map[string]any{"selector": "#email", "text": "a@b.c"})
	require.True(t, result.Success)
	last, _ = page.LastCall()
	assert.Equal(t, browsertest.Call{Op: "type", Args: []any{"#email", "a@b.c"}}, last)

	result, _ = Execute(ctx, page, "navigate", map[string]any{"url": "https://example.com/a"})
	require.True(t, result.Success)
	assert.Equal(t, map[string]string{"url": "https://example.com/a"}, result.Data)

	result, _ = Execute(ctx, page, "getUrl", nil)
	require.True(t, result.Success)
	assert.Equal(t, map[string]string{"url": "https://example.com/a"}, result.Data)

	result, _ = Execute(ctx, page, "getTitle", nil)
	require.True(t, result.Success)
	assert.Equal(t, map[string]string{"title": "fake"}, result.Data)
}

func TestScreenshotActionEncodesImage(t *testing.T) {
	page := browsertest.NewPage()
	page.Image = []byte("img")

	result, _ := Execute(context.Background(), page, "screenshot", map[string]any{"fast": true})

	require.True(t, result.Success)
	assert.Equal(t, map[string]string{"contentType": "image/jpeg", "image": "aW1n"}, result.Data)
}

func TestRunReportsUnavailablePage(t *testing.T) {
	page := browsertest.NewPage()
	require.NoError(t, page.Close())

	result, err := Run(context.Background(), page, Focus{Selector: "#pw"})

	assert.ErrorIs(t, err, browser.ErrPageUnavailable)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "focus failed")
}

func TestExecuteSeparatesDeadPageFromBadCommand(t *testing.T) {
	page := browsertest.NewPage()
	require.NoError(t, page.Close())

	result, err := Execute(context.Background(), page, "click", map[string]any{"selector": "#go"})
	assert.ErrorIs(t, err, browser.ErrPageUnavailable)
	assert.False(t, result.Success)

	result, err = Execute(context.Background(), page, "bogus", nil)
	assert.NoError(t, err)
	assert.False(t, result.Success)
}
