package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/hub"
	"github.com/shehryarbajwa/browserbase-control/internal/metrics"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Client message types
const (
	msgJoin       = "join"
	msgLeave      = "leave"
	msgScreenshot = "screenshot"
	msgAction     = "action"
	msgPing       = "ping"
)

// ViewerController is the session surface a viewer may drive
type ViewerController interface {
	Access(ctx context.Context, token string) (models.SessionInfo, error)
	CaptureAndBroadcast(ctx context.Context, token string, fast bool) (int, error)
	ExecuteAction(ctx context.Context, token, name string, params map[string]any, correlationID string) (models.ActionResult, error)
}

// Groups is the membership side of the fan-out hub
type Groups interface {
	Join(token string, s hub.Subscriber) bool
	Leave(token, viewerID string) bool
	LeaveAll(viewerID string) []string
}

type clientMessage struct {
	Type          string         `json:"type"`
	SessionToken  string         `json:"sessionToken"`
	Action        string         `json:"action,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Fast          bool           `json:"fast,omitempty"`
}

// ViewerServer runs the realtime channel viewers use to watch and drive sessions
type ViewerServer struct {
	sessions ViewerController
	groups   Groups
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewViewerServer(sessions ViewerController, groups Groups, m *metrics.Metrics, logger *zap.Logger) *ViewerServer {
	return &ViewerServer{
		sessions: sessions,
		groups:   groups,
		metrics:  m,
		logger:   logger.Named("viewers"),
	}
}

// viewer is one websocket connection. Events are queued on send and written by a
// single goroutine; a full queue drops the event.
type viewer struct {
	id   string
	conn *websocket.Conn
	send chan models.Event

	mu     sync.Mutex
	closed bool
}

func (v *viewer) ID() string { return v.id }

func (v *viewer) Deliver(ev models.Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	select {
	case v.send <- ev:
		return true
	default:
		return false
	}
}

func (v *viewer) shutdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.closed = true
		close(v.send)
	}
}

// ServeHTTP upgrades the request and serves the viewer until it disconnects
func (s *ViewerServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade viewer connection", zap.Error(err))
		return
	}

	v := &viewer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan models.Event, sendBuffer),
	}
	s.metrics.Viewers.Inc()
	s.logger.Info("viewer connected", zap.String("viewer", v.id))

	go s.writeLoop(v)
	s.readLoop(r.Context(), v)

	left := s.groups.LeaveAll(v.id)
	v.shutdown()
	s.metrics.Viewers.Dec()
	s.logger.Info("viewer disconnected", zap.String("viewer", v.id), zap.Int("sessions", len(left)))
}

func (s *ViewerServer) readLoop(ctx context.Context, v *viewer) {
	v.conn.SetReadLimit(maxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// a viewer dropping mid-launch must not abort the launch
	ctx = context.WithoutCancel(ctx)

	for {
		var msg clientMessage
		if err := v.conn.ReadJSON(&msg); err != nil {
			if isDecodeError(err) {
				s.reply(v, models.NewEvent(models.EventError, "", map[string]string{"error": "malformed message"}))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("viewer read failed", zap.String("viewer", v.id), zap.Error(err))
			}
			return
		}
		s.handle(ctx, v, msg)
		// a join may spend a whole launch here without reading pongs
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (s *ViewerServer) handle(ctx context.Context, v *viewer, msg clientMessage) {
	switch msg.Type {
	case msgJoin:
		info, err := s.sessions.Access(ctx, msg.SessionToken)
		if err != nil {
			s.replyError(v, msg, models.EventError, err)
			return
		}
		// sessionInfo goes out before any broadcast can reach the new member
		s.reply(v, models.NewEvent(models.EventSessionInfo, msg.SessionToken, info))
		s.groups.Join(msg.SessionToken, v)

	case msgLeave:
		s.groups.Leave(msg.SessionToken, v.id)

	case msgScreenshot:
		if _, err := s.sessions.CaptureAndBroadcast(ctx, msg.SessionToken, msg.Fast); err != nil {
			s.replyError(v, msg, models.EventError, err)
		}

	case msgAction:
		if _, err := s.sessions.ExecuteAction(ctx, msg.SessionToken, msg.Action, msg.Params, msg.CorrelationID); err != nil {
			s.replyError(v, msg, models.EventActionError, err)
		}

	case msgPing:
		s.reply(v, models.NewEvent(models.EventPong, msg.SessionToken, nil))

	default:
		s.reply(v, models.NewEvent(models.EventError, msg.SessionToken, map[string]string{
			"error": "unknown message type: " + msg.Type,
		}))
	}
}

func (s *ViewerServer) reply(v *viewer, ev models.Event) {
	if !v.Deliver(ev) {
		s.metrics.DroppedEvents.Inc()
	}
}

func (s *ViewerServer) replyError(v *viewer, msg clientMessage, typ models.EventType, err error) {
	ev := models.NewEvent(typ, msg.SessionToken, map[string]string{"error": err.Error()})
	ev.CorrelationID = msg.CorrelationID
	s.reply(v, ev)
}

func (s *ViewerServer) writeLoop(v *viewer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := sonic.Marshal(ev)
			if err != nil {
				s.logger.Error("failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
				continue
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
