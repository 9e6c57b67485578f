package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

type scriptedNavigator struct {
	reachable    map[string]string
	hang         map[string]bool
	visited      []string
	placeholders int
}

func (n *scriptedNavigator) Navigate(ctx context.Context, url string) (string, error) {
	n.visited = append(n.visited, url)
	if n.hang[url] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if loc, ok := n.reachable[url]; ok {
		return loc, nil
	}
	return "", errors.New("net::ERR_NAME_NOT_RESOLVED")
}

func (n *scriptedNavigator) LoadPlaceholder(ctx context.Context, html string) error {
	n.placeholders++
	return nil
}

func TestResolveFallsThroughToFirstReachableCandidate(t *testing.T) {
	nav := &scriptedNavigator{reachable: map[string]string{
		"https://c.example.com": "https://c.example.com/login",
		"https://d.example.com": "https://d.example.com/",
	}}

	out := Resolve(context.Background(), nav, Policy{
		Candidates: []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://d.example.com"},
	}, zap.NewNop())

	assert.False(t, out.Placeholder)
	assert.Equal(t, "https://c.example.com/login", out.URL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}, nav.visited)
	assert.Zero(t, nav.placeholders)
}

func TestResolveLoadsPlaceholderWhenEverythingFails(t *testing.T) {
	nav := &scriptedNavigator{}

	out := Resolve(context.Background(), nav, Policy{
		Candidates: []string{"https://a.example.com", "https://b.example.com"},
	}, zap.NewNop())

	assert.True(t, out.Placeholder)
	assert.Equal(t, models.PlaceholderURL, out.URL)
	assert.Len(t, out.Failures, 2)
	assert.Equal(t, 1, nav.placeholders)
}

func TestResolveTimesOutHangingCandidate(t *testing.T) {
	nav := &scriptedNavigator{
		hang:      map[string]bool{"https://slow.example.com": true},
		reachable: map[string]string{"https://fast.example.com": "https://fast.example.com/"},
	}

	out := Resolve(context.Background(), nav, Policy{
		Candidates:     []string{"https://slow.example.com", "https://fast.example.com"},
		AttemptTimeout: 20 * time.Millisecond,
	}, zap.NewNop())

	require.False(t, out.Placeholder)
	assert.Equal(t, "https://fast.example.com/", out.URL)
}

func TestResolveTreatsBlankLocationAsFailure(t *testing.T) {
	nav := &scriptedNavigator{reachable: map[string]string{"https://a.example.com": models.PlaceholderURL}}

	out := Resolve(context.Background(), nav, Policy{Candidates: []string{"https://a.example.com"}}, zap.NewNop())

	assert.True(t, out.Placeholder)
}

func TestResolveWithNoCandidatesShowsPlaceholder(t *testing.T) {
	nav := &scriptedNavigator{}
	out := Resolve(context.Background(), nav, Policy{}, zap.NewNop())
	assert.True(t, out.Placeholder)
	assert.Equal(t, 1, nav.placeholders)
}
