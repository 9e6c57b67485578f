package browser

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosedHandleRejectsEveryPrimitive(t *testing.T) {
	teardowns := 0
	h := &Handle{
		sessionID: "s-1",
		done:      make(chan struct{}),
		teardown: func() error {
			teardowns++
			return nil
		},
	}

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, teardowns)

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel should be closed after Close")
	}

	ctx := context.Background()
	_, err := h.Navigate(ctx, "https://example.com")
	assert.ErrorIs(t, err, ErrPageUnavailable)
	_, err = h.Screenshot(ctx, ScreenshotOptions{Fast: true})
	assert.ErrorIs(t, err, ErrPageUnavailable)
	assert.ErrorIs(t, h.Click(ctx, "#login"), ErrPageUnavailable)
	assert.ErrorIs(t, h.PressKey(ctx, "Enter"), ErrPageUnavailable)
	assert.ErrorIs(t, h.Scroll(ctx, 0, 100), ErrPageUnavailable)
}

func TestToRequestDecodesPostData(t *testing.T) {
	body := "email=foo%40bar.com&password=hunter2"
	req := toRequest(&network.Request{
		URL:    "https://login.example.com/session",
		Method: "POST",
		Headers: network.Headers{
			"content-type": "application/x-www-form-urlencoded",
		},
		PostDataEntries: []*network.PostDataEntry{
			{Bytes: base64.StdEncoding.EncodeToString([]byte(body))},
		},
	})

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", req.ContentType)
	assert.Equal(t, body, string(req.Body))
}

func TestKeySequence(t *testing.T) {
	tests := map[string]string{
		"Enter":     "\r",
		"tab":       "\t",
		"ArrowDown": KeySequence("arrowdown"),
		"a":         "a",
		"Z":         "Z",
	}
	for key, want := range tests {
		assert.Equal(t, want, KeySequence(key), key)
	}
}

func TestScreenshotContentType(t *testing.T) {
	assert.Equal(t, "image/png", ScreenshotOptions{}.ContentType())
	assert.Equal(t, "image/jpeg", ScreenshotOptions{Fast: true}.ContentType())
}
