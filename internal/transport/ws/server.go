package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gatherbuddy.app/internal/protocol"
	"gatherbuddy.app/internal/sim/communicator"
)

// Inbound is a command received from an overlay client.
type Inbound struct {
	ClientID string
	Command  protocol.CommandMsg
}

// Server fans host output out to connected overlays and forwards their commands to a
// single consumer.
type Server struct {
	log     *log.Logger
	welcome func(sessionID string) protocol.WelcomeMsg

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan []byte

	inbox   chan Inbound
	dropped atomic.Uint64
}

const clientQueue = 64

func NewServer(logger *log.Logger, welcome func(sessionID string) protocol.WelcomeMsg) *Server {
	return &Server{
		log:     logger,
		welcome: welcome,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local overlay
		},
		clients: map[string]chan []byte{},
		inbox:   make(chan Inbound, 64),
	}
}

// Inbox delivers commands in arrival order. The host drains it from one goroutine.
func (s *Server) Inbox() <-chan Inbound { return s.inbox }

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := s.handshake(conn)
		if id == "" {
			return
		}
		defer s.remove(id)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writeLoop(ctx, cancel, conn, out)

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCommand {
				continue
			}
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil || cmd.Line == "" {
				s.Send(id, nack(cmd.ID, protocol.ErrProtoBadRequest, "bad COMMAND"))
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				s.Send(id, nack(cmd.ID, protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			select {
			case s.inbox <- Inbound{ClientID: id, Command: cmd}:
			case <-ctx.Done():
				return
			default:
				s.Send(id, nack(cmd.ID, protocol.ErrBusy, "command queue full"))
			}
		}
	}
}

type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeLoop drains out into conn. A failed write closes conn so the reader loop
// returns too.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn frameWriter, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				cancel()
				_ = conn.Close()
				return
			}
		}
	}
}

func nack(id, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          id,
		Code:            code,
		Message:         msg,
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "overlay"
	}

	id := uuid.NewString()
	w := protocol.WelcomeMsg{SessionID: id}
	if s.welcome != nil {
		w = s.welcome(id)
	}
	w.Type = protocol.TypeWelcome
	w.ProtocolVersion = protocol.Version
	w.SessionID = id
	if err := writeJSON(conn, w); err != nil {
		return "", nil
	}

	out := make(chan []byte, clientQueue)
	s.mu.Lock()
	s.clients[id] = out
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("overlay %s connected as %s", hello.ClientName, id)
	}
	return id, out
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Printf("overlay %s disconnected", id)
	}
}

// Send queues v for one client. Messages for slow clients are dropped.
func (s *Server) Send(id string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	out, ok := s.clients[id]
	s.mu.Unlock()
	if ok {
		s.push(out, b)
	}
}

// Broadcast queues v for every connected client.
func (s *Server) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.clients {
		s.push(out, b)
	}
}

func (s *Server) push(out chan []byte, b []byte) {
	select {
	case out <- b:
	default:
		s.dropped.Add(1)
	}
}

// Report forwards communicator messages as REPORT messages.
func (s *Server) Report(m communicator.Message) {
	msg := protocol.ReportMsg{
		Type:            protocol.TypeReport,
		ProtocolVersion: protocol.Version,
		Kind:            string(m.Kind),
		Text:            m.Text,
	}
	if m.Link != nil {
		l := LinkOf(*m.Link)
		msg.Link = &l
	}
	s.Broadcast(msg)
}

// Waypoint asks every overlay to place a map flag.
func (s *Server) Waypoint(link communicator.MapLink) error {
	s.Broadcast(protocol.WaypointMsg{
		Type:            protocol.TypeWaypoint,
		ProtocolVersion: protocol.Version,
		Link:            LinkOf(link),
	})
	return nil
}

func LinkOf(l communicator.MapLink) protocol.MapLink {
	return protocol.MapLink{
		Name:          l.Name,
		Territory:     l.Territory,
		TerritoryName: l.TerritoryName,
		X:             l.X,
		Y:             l.Y,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
