package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fmuoria/voice-interview-agent/internal/log"
)

// wsFrame is the JSON frame exchanged with a websocket voice bridge
type wsFrame struct {
	Type      string           `json:"type"`
	Assistant *AssistantConfig `json:"assistant,omitempty"`
	Message   json.RawMessage  `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// WSSession is a Session backed by a websocket bridge to the voice provider.
// Each Start opens a new connection; inbound frames are dispatched from a
// single read goroutine so events for one call are never concurrent.
type WSSession struct {
	Emitter

	url    string
	header http.Header
	dialer websocket.Dialer

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewWSSession creates a session that dials url on Start
func NewWSSession(url string, header http.Header) *WSSession {
	return &WSSession{
		url:    url,
		header: header,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Start dials the bridge and sends the assistant configuration
func (s *WSSession) Start(ctx context.Context, cfg AssistantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return fmt.Errorf("voice session already started")
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("failed to connect to voice bridge (status %d): %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("failed to connect to voice bridge: %w", err)
	}

	if err := conn.WriteJSON(wsFrame{Type: "start", Assistant: &cfg}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send start frame: %w", err)
	}

	s.conn = conn
	go s.readLoop(conn)
	return nil
}

// Stop asks the bridge to end the call and closes the connection
func (s *WSSession) Stop() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteJSON(wsFrame{Type: "stop"})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return conn.Close()
}

// Send writes a control message to the live call
func (s *WSSession) Send(msg OutboundMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotStarted
	}

	data, err := json.Marshal(msg.Message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(wsFrame{Type: msg.Type, Message: data})
}

func (s *WSSession) readLoop(conn *websocket.Conn) {
	ended := false
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		if !ended {
			s.Emit(Event{Kind: EventCallEnd})
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				log.Debug("voice bridge read ended", "error", err)
			}
			return
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("dropping malformed voice frame", "error", err)
			continue
		}

		ev, ok := decodeEvent(frame)
		if !ok {
			continue
		}
		if ev.Kind == EventCallEnd {
			ended = true
			s.Emit(ev)
			return
		}
		s.Emit(ev)
	}
}

func decodeEvent(frame wsFrame) (Event, bool) {
	switch EventKind(frame.Type) {
	case EventCallStart, EventCallEnd, EventSpeechStart, EventSpeechEnd:
		return Event{Kind: EventKind(frame.Type)}, true
	case EventMessage:
		var msg Message
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			return Event{Kind: EventError, Err: fmt.Errorf("failed to decode message event: %w", err)}, true
		}
		return Event{Kind: EventMessage, Message: &msg}, true
	case EventError:
		return Event{Kind: EventError, Err: errors.New(frame.Error)}, true
	default:
		return Event{}, false
	}
}
