// Package proxy carries websocket traffic: the DevTools passthrough to a
// session's browser and the realtime viewer channel.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const dialTimeout = 10 * time.Second

// DebugResolver finds the DevTools address of a session's browser
type DebugResolver interface {
	DebuggingURL(token string) (string, error)
}

// DevToolsServer proxies a client's DevTools websocket to the session's browser
type DevToolsServer struct {
	sessions DebugResolver
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

func NewDevToolsServer(sessions DebugResolver, logger *zap.Logger) *DevToolsServer {
	return &DevToolsServer{
		sessions: sessions,
		dialer:   websocket.DefaultDialer,
		logger:   logger.Named("devtools"),
	}
}

func (s *DevToolsServer) HandleDebugConnection(w http.ResponseWriter, r *http.Request, token string) {
	browserURL, err := s.sessions.DebuggingURL(token)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Session is not running", http.StatusGone)
		return
	case browserURL == "":
		http.Error(w, "Session has no debugging endpoint", http.StatusServiceUnavailable)
		return
	}

	// Dial first so a dead browser is reported as an HTTP error
	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()
	browserConn, _, err := s.dialer.DialContext(ctx, browserURL, nil)
	if err != nil {
		s.logger.Warn("failed to reach browser", logging.Token(token), zap.Error(err))
		http.Error(w, fmt.Sprintf("Error connecting: %v", err), http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("devtools client connected", logging.Token(token))

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.pipe(clientConn, browserConn, "client→browser")
	}()
	go func() {
		errChan <- s.pipe(browserConn, clientConn, "browser→client")
	}()

	// Either side closing ends the proxy
	<-errChan
	s.logger.Info("devtools client disconnected", logging.Token(token))
}

func (s *DevToolsServer) pipe(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read failed", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Debug("websocket write failed", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}
