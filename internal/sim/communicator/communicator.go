package communicator

import (
	"fmt"
	"log"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

type Kind string

const (
	KindEcho        Kind = "echo"
	KindError       Kind = "error"
	KindUptime      Kind = "uptime"
	KindCoordinates Kind = "coordinates"
)

type MapLink struct {
	Name          string  `json:"name"`
	Territory     uint32  `json:"territory"`
	TerritoryName string  `json:"territory_name"`
	X             float32 `json:"x"`
	Y             float32 `json:"y"`
}

type Message struct {
	Kind Kind     `json:"kind"`
	Text string   `json:"text"`
	Link *MapLink `json:"link,omitempty"`
}

type Sink interface {
	Report(m Message)
}

type SinkFunc func(m Message)

func (f SinkFunc) Report(m Message) { f(m) }

// MultiSink fans a message out to every sink in order.
type MultiSink []Sink

func (s MultiSink) Report(m Message) {
	for _, sink := range s {
		if sink != nil {
			sink.Report(m)
		}
	}
}

type LogSink struct{ Log *log.Logger }

func (s LogSink) Report(m Message) {
	if s.Log == nil {
		return
	}
	if m.Link != nil {
		s.Log.Printf("%s: %s (%s %.1f, %.1f)", m.Kind, m.Text, m.Link.TerritoryName, m.Link.X, m.Link.Y)
		return
	}
	s.Log.Printf("%s: %s", m.Kind, m.Text)
}

type Communicator struct {
	sink  Sink
	clock timeline.Clock
}

func New(sink Sink, clock timeline.Clock) *Communicator {
	return &Communicator{sink: sink, clock: clock}
}

func (c *Communicator) Report(m Message) {
	if c == nil || c.sink == nil {
		return
	}
	c.sink.Report(m)
}

func (c *Communicator) Print(text string) {
	c.Report(Message{Kind: KindEcho, Text: text})
}

func (c *Communicator) PrintError(text string) {
	c.Report(Message{Kind: KindError, Text: text})
}

func (c *Communicator) PrintIdentifiedItem(input string, t *catalogs.Target) {
	if t == nil {
		c.PrintError(fmt.Sprintf("Could not identify %q.", input))
		return
	}
	c.Print(fmt.Sprintf("Identified [%d: %s] for %q.", t.ID, t.Name, input))
}

func (c *Communicator) LocationNotFound(t *catalogs.Target, hint *catalogs.GatheringType) {
	if hint != nil {
		c.PrintError(fmt.Sprintf("No associated location or attuned aetheryte found for %s with condition %s.", t, *hint))
		return
	}
	c.PrintError(fmt.Sprintf("No associated location or attuned aetheryte found for %s.", t))
}

func (c *Communicator) PrintCoordinates(link MapLink) {
	c.Report(Message{
		Kind: KindCoordinates,
		Text: fmt.Sprintf("%s (%s)", link.Name, link.TerritoryName),
		Link: &link,
	})
}

func (c *Communicator) PrintUptime(w timeline.Interval) {
	c.Report(Message{Kind: KindUptime, Text: UptimeText(w, c.now())})
}

func (c *Communicator) now() timeline.Timestamp {
	if c.clock == nil {
		return timeline.SystemClock{}.ServerTime()
	}
	return c.clock.ServerTime()
}

// UptimeText describes w relative to now. Always carries no time text.
func UptimeText(w timeline.Interval, now timeline.Timestamp) string {
	switch {
	case w.IsAlways():
		return "Available now."
	case w.IsNever(), w.IsInvalid():
		return "No upcoming uptime known."
	case w.Start > now:
		return fmt.Sprintf("Next available in %s.", timeline.DurationString(w.Start, now, true))
	case w.End > now:
		return fmt.Sprintf("Available for %s.", timeline.DurationString(w.End, now, true))
	}
	return "Uptime has passed."
}
