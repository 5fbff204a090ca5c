package protocol_test

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gatherbuddy.app/internal/protocol"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(name string, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", name, err)
		}
		if err := compile(name).Validate(v); err != nil {
			t.Fatalf("validate %s: %v", name, err)
		}
	}

	link := protocol.MapLink{Name: "Mineral Deposit", Territory: 134, TerritoryName: "Middle La Noscea", X: 26, Y: 20}

	validate("hello.schema.json", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "overlay"})
	validate("welcome.schema.json", protocol.WelcomeMsg{
		Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
		SessionID: "6f1c", CatalogDigest: "deadbeef", ServerTime: 1_700_000_000_000,
	})
	validate("command.schema.json", protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ID: "c1", Line: "gather next"})
	validate("ack.schema.json", protocol.AckMsg{
		Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: "c1",
		Accepted: false, Code: protocol.ErrNoPreviousRequest, Message: "no previous request",
	})
	validate("report.schema.json", protocol.ReportMsg{Type: protocol.TypeReport, ProtocolVersion: protocol.Version, Kind: "coordinates", Text: "x", Link: &link})
	validate("report.schema.json", protocol.ReportMsg{Type: protocol.TypeReport, ProtocolVersion: protocol.Version, Kind: "echo", Text: "Available now."})
	validate("waypoint.schema.json", protocol.WaypointMsg{Type: protocol.TypeWaypoint, ProtocolVersion: protocol.Version, Link: link})
	validate("status.schema.json", protocol.StatusMsg{
		Type: protocol.TypeStatus, ProtocolVersion: protocol.Version, State: "located",
		Target: "Copper Ore", Location: 101, Window: &protocol.Window{Start: 0, End: math.MaxInt64}, Visited: 1,
	})
	validate("fish_timer.schema.json", protocol.FishTimerMsg{
		Type: protocol.TypeFishTimer, ProtocolVersion: protocol.Version, Spot: 1, Bait: 2585, Scale: 40000,
		Rows: []protocol.FishRow{
			{Fish: 4869, Name: "Merlthor Goby", Available: true, Caught: true, SortKey: 4000<<16 | 9000, Min: 4000, Max: 9000},
			{Fish: 8752, Name: "Dravanian Squeaker", SortKey: math.MaxUint64, Min: 65535, Max: 65535},
		},
	})
}

func TestSchemas_RejectBadCommand(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "command.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"COMMAND","protocol_version":"1.0","line":""}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("empty command line accepted")
	}
}
