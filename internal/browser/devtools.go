package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// VersionInfo is the payload of the DevTools /json/version endpoint
type VersionInfo struct {
	Browser              string `json:"Browser"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DevToolsProbe polls a DevTools HTTP endpoint until the browser answers
type DevToolsProbe struct {
	client *retryablehttp.Client
}

// NewDevToolsProbe creates a probe retrying for roughly ten seconds
func NewDevToolsProbe(logger *zap.Logger) *DevToolsProbe {
	client := retryablehttp.NewClient()
	client.RetryMax = 20
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.Logger = leveledLogger{s: logger.Named("devtools").Sugar()}

	return &DevToolsProbe{client: client}
}

// Version fetches /json/version from baseURL (http://host:port)
func (p *DevToolsProbe) Version(ctx context.Context, baseURL string) (*VersionInfo, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/json/version"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build devtools request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser did not become ready: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("devtools endpoint returned %d", resp.StatusCode)
	}

	var info VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode devtools version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("devtools endpoint did not report a websocket url")
	}
	return &info, nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
