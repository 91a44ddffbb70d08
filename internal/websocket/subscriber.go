package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	outboxSize     = 64
)

// ErrSlowSubscriber is returned when a subscriber's outbox is full
var ErrSlowSubscriber = errors.New("subscriber outbox is full")

// Subscriber is one dashboard connection following budget events of a
// workspace. Subscribers only listen; inbound data frames are discarded.
type Subscriber struct {
	id          string
	workspaceID int32
	filter      YearFilter
	conn        *websocket.Conn
	outbox      chan []byte
	done        chan struct{}
	stopOnce    sync.Once
}

var _ Recipient = (*Subscriber)(nil)

// NewSubscriber wraps an upgraded connection
func NewSubscriber(conn *websocket.Conn, workspaceID int32, filter YearFilter) *Subscriber {
	return &Subscriber{
		id:          uuid.New().String(),
		workspaceID: workspaceID,
		filter:      filter,
		conn:        conn,
		outbox:      make(chan []byte, outboxSize),
		done:        make(chan struct{}),
	}
}

// ID returns the subscriber's unique identifier
func (s *Subscriber) ID() string { return s.id }

// WorkspaceID returns the workspace whose events the subscriber receives
func (s *Subscriber) WorkspaceID() int32 { return s.workspaceID }

// Wants reports whether events for fiscalYear should be delivered
func (s *Subscriber) Wants(fiscalYear int) bool { return s.filter.Match(fiscalYear) }

// Send queues a message without blocking. Messages queued before Run starts
// are written first, in order.
func (s *Subscriber) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrClientClosed
	default:
	}
	select {
	case s.outbox <- data:
		return nil
	default:
		return ErrSlowSubscriber
	}
}

// Close sends a close frame and drops the connection. Safe to call more than once.
func (s *Subscriber) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

// Done is closed once the subscriber stops
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Run writes queued messages and keeps the connection alive until the peer
// leaves or Close is called. It blocks; the subscriber is closed on return.
func (s *Subscriber) Run() {
	defer s.Close()
	go s.writeLoop()
	s.readLoop()
}

func (s *Subscriber) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger().Warn().Err(err).Msg("Budget subscriber closed unexpectedly")
			}
			return
		}
	}
}

func (s *Subscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case <-s.done:
			return
		case data = <-s.outbox:
			kind = websocket.TextMessage
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(kind, data); err != nil {
			s.logger().Debug().Err(err).Msg("Budget subscriber write failed")
			_ = s.Close()
			return
		}
	}
}

func (s *Subscriber) logger() *zerolog.Logger {
	l := log.With().Str("client_id", s.id).Int32("workspace_id", s.workspaceID).Logger()
	return &l
}
