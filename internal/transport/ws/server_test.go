package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gatherbuddy.app/internal/protocol"
	"gatherbuddy.app/internal/sim/communicator"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var w protocol.WelcomeMsg
	readJSON(t, conn, &w)
	return w
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients=%d want %d", s.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandshakeCommandAndBroadcast(t *testing.T) {
	s := NewServer(nil, func(id string) protocol.WelcomeMsg {
		return protocol.WelcomeMsg{CatalogDigest: "abc", ServerTime: 42}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	w := hello(t, conn)
	if w.Type != protocol.TypeWelcome || w.SessionID == "" || w.CatalogDigest != "abc" || w.ServerTime != 42 {
		t.Fatalf("welcome=%+v", w)
	}
	waitClients(t, s, 1)

	cmd := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ID: "c1", Line: "gather copper ore"}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case in := <-s.Inbox():
		if in.ClientID != w.SessionID || in.Command.Line != "gather copper ore" {
			t.Fatalf("inbound=%+v", in)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("command not forwarded")
	}

	s.Report(communicator.Message{Kind: communicator.KindCoordinates, Text: "Mineral Deposit", Link: &communicator.MapLink{Name: "Mineral Deposit", X: 26}})
	var rep protocol.ReportMsg
	readJSON(t, conn, &rep)
	if rep.Type != protocol.TypeReport || rep.Kind != "coordinates" || rep.Link == nil || rep.Link.X != 26 {
		t.Fatalf("report=%+v", rep)
	}

	if err := s.Waypoint(communicator.MapLink{Name: "Mineral Deposit", Territory: 134}); err != nil {
		t.Fatalf("Waypoint: %v", err)
	}
	var wp protocol.WaypointMsg
	readJSON(t, conn, &wp)
	if wp.Type != protocol.TypeWaypoint || wp.Link.Territory != 134 {
		t.Fatalf("waypoint=%+v", wp)
	}
}

func TestCommandWithWrongVersionIsRejected(t *testing.T) {
	s := NewServer(nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()
	hello(t, conn)

	_ = conn.WriteJSON(protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: "0.1", ID: "c9", Line: "gather next"})
	var ack protocol.AckMsg
	readJSON(t, conn, &ack)
	if ack.AckFor != "c9" || ack.Accepted || ack.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("ack=%+v", ack)
	}
	select {
	case in := <-s.Inbox():
		t.Fatalf("unexpected inbound %+v", in)
	default:
	}
}

func TestHandshakeRequiresHello(t *testing.T) {
	s := NewServer(nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	_ = conn.WriteJSON(protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Line: "gather next"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v, want policy violation close", err)
	}
	if s.Clients() != 0 {
		t.Fatalf("clients=%d", s.Clients())
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	s := NewServer(nil, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn := dial(t, srv)
	hello(t, conn)
	waitClients(t, s, 1)
	_ = conn.Close()
	waitClients(t, s, 0)
}

type brokenConn struct {
	closed chan struct{}
}

func (c *brokenConn) SetWriteDeadline(time.Time) error { return nil }
func (c *brokenConn) WriteMessage(int, []byte) error   { return errors.New("broken pipe") }

func (c *brokenConn) Close() error {
	close(c.closed)
	return nil
}

func TestWriteFailureClosesConn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := &brokenConn{closed: make(chan struct{})}
	out := make(chan []byte, 1)
	out <- []byte(`{}`)

	done := make(chan struct{})
	go func() {
		writeLoop(ctx, cancel, conn, out)
		close(done)
	}()
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("conn not closed after a failed write")
	}
	<-done
	if ctx.Err() == nil {
		t.Fatalf("context not cancelled")
	}
}
