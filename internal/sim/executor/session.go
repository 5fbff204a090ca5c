package executor

import (
	"errors"
	"fmt"
	"strings"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

var (
	ErrNotIdentified     = errors.New("not identified")
	ErrLocationNotFound  = errors.New("location not found")
	ErrNoPreviousRequest = errors.New("no previous request")
)

type Identifier interface {
	Identify(text string, kind catalogs.Kind) (*catalogs.Target, bool)
}

type Uptimes interface {
	BestLocation(t *catalogs.Target, now timeline.Timestamp) (*catalogs.Location, timeline.Interval, error)
	NextUptimeOfType(t *catalogs.Target, gt catalogs.GatheringType, now timeline.Timestamp) (*catalogs.Location, timeline.Interval, error)
	NextUptimeExcluding(t *catalogs.Target, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error)
	NextUptimeOfTypeExcluding(t *catalogs.Target, gt catalogs.GatheringType, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error)
	Uptime(t *catalogs.Target, loc *catalogs.Location, now timeline.Timestamp) timeline.Interval
	LocationCount(t *catalogs.Target) int
}

type Alarms interface {
	Last(kind catalogs.Kind) *catalogs.Target
}

type Reporter interface {
	Print(text string)
	PrintError(text string)
	PrintIdentifiedItem(input string, t *catalogs.Target)
	LocationNotFound(t *catalogs.Target, hint *catalogs.GatheringType)
}

type Deps struct {
	Identifier Identifier
	Uptimes    Uptimes
	Alarms     Alarms
	Clock      timeline.Clock
	Reporter   Reporter
}

type IdentifyMode int

const (
	IdentifyNone IdentifyMode = iota
	IdentifyItem
	IdentifyFish
)

func ModeFor(kind catalogs.Kind) IdentifyMode {
	switch kind {
	case catalogs.KindItem:
		return IdentifyItem
	case catalogs.KindFish:
		return IdentifyFish
	}
	return IdentifyNone
}

type State int

const (
	Idle State = iota
	Identifying
	Located
)

func (s State) String() string {
	switch s {
	case Identifying:
		return "identifying"
	case Located:
		return "located"
	}
	return "idle"
}

// Session is the single owner of the current gather request. It is not safe for
// concurrent use.
type Session struct {
	deps Deps

	mode     IdentifyMode
	name     string
	target   *catalogs.Target
	hint     *catalogs.GatheringType
	location *catalogs.Location
	window   timeline.Interval

	lastTarget  *catalogs.Target
	visited     catalogs.LocationSet
	keepVisited bool
	lastReset   timeline.Timestamp
}

func New(d Deps) *Session {
	if d.Clock == nil {
		d.Clock = timeline.SystemClock{}
	}
	if d.Reporter == nil {
		d.Reporter = nopReporter{}
	}
	return &Session{
		deps:      d,
		window:    timeline.Always,
		visited:   catalogs.LocationSet{},
		lastReset: timeline.Epoch,
	}
}

func (s *Session) Target() *catalogs.Target          { return s.target }
func (s *Session) Location() *catalogs.Location      { return s.location }
func (s *Session) Window() timeline.Interval         { return s.window }
func (s *Session) LastTarget() *catalogs.Target      { return s.lastTarget }
func (s *Session) KeepVisited() bool                 { return s.keepVisited }
func (s *Session) VisitedCount() int                 { return len(s.visited) }
func (s *Session) Mode() IdentifyMode                { return s.mode }
func (s *Session) Hint() *catalogs.GatheringType     { return s.hint }
func (s *Session) ResetDeadline() timeline.Timestamp { return s.lastReset }

func (s *Session) Visited(l *catalogs.Location) bool { return s.visited.Has(l) }

func (s *Session) State() State {
	switch {
	case s.location != nil:
		return Located
	case s.target != nil:
		return Identifying
	}
	return Idle
}

func (s *Session) now() timeline.Timestamp { return s.deps.Clock.ServerTime() }

func (s *Session) setHint(hint *catalogs.GatheringType) {
	if hint == nil {
		s.hint = nil
		return
	}
	g := hint.ToGroup()
	if g == catalogs.Unknown {
		s.hint = nil
		return
	}
	s.hint = &g
}

func (s *Session) resetRequest(mode IdentifyMode, name string) {
	s.mode = mode
	s.name = name
	s.target = nil
	s.location = nil
	s.window = timeline.Always
	s.keepVisited = false
}

// RequestByName identifies text as a target of kind. hint replaces any earlier gathering
// type restriction; nil clears it.
func (s *Session) RequestByName(text string, kind catalogs.Kind, hint *catalogs.GatheringType) error {
	s.resetRequest(ModeFor(kind), strings.ToLower(strings.TrimSpace(text)))
	s.setHint(hint)
	if s.name == "" || s.mode == IdentifyNone {
		return fmt.Errorf("%w: empty request", ErrNotIdentified)
	}
	if s.deps.Identifier != nil {
		if t, ok := s.deps.Identifier.Identify(s.name, kind); ok {
			s.target = t
		}
	}
	s.deps.Reporter.PrintIdentifiedItem(s.name, s.target)
	if s.target == nil {
		return fmt.Errorf("%w: %q", ErrNotIdentified, s.name)
	}
	return nil
}

// RequestRepeatLast targets the previous request again and keeps skipping the locations
// already visited for it.
func (s *Session) RequestRepeatLast() error {
	s.location = nil
	s.window = timeline.Always
	s.target = s.lastTarget
	if s.lastReset < s.now() {
		s.visited.Clear()
	}
	s.keepVisited = true
	if s.target == nil {
		s.deps.Reporter.PrintError("No previous gather command registered.")
		return ErrNoPreviousRequest
	}
	return nil
}

func (s *Session) RequestFromAlarm(kind catalogs.Kind) error {
	s.resetRequest(ModeFor(kind), "alarm")
	if s.deps.Alarms != nil {
		s.target = s.deps.Alarms.Last(kind)
	}
	if s.target == nil {
		s.deps.Reporter.PrintError(fmt.Sprintf("No %s alarm has been triggered yet.", kind))
		return fmt.Errorf("%w: no %s alarm", ErrNotIdentified, kind)
	}
	return nil
}

// RequestExplicit skips identification for callers that already hold the target.
func (s *Session) RequestExplicit(t *catalogs.Target, hint *catalogs.GatheringType) error {
	s.resetRequest(IdentifyNone, "")
	if t == nil {
		return fmt.Errorf("%w: no target", ErrNotIdentified)
	}
	s.target = t
	s.setHint(hint)
	return nil
}

// ResolveLocation asks the uptime collaborator for a location of the current target.
func (s *Session) ResolveLocation() error {
	if s.target == nil {
		return nil
	}
	s.location = nil
	q := selectQuery(s.keepVisited, s.hint)
	var (
		loc *catalogs.Location
		w   timeline.Interval
		err error
	)
	if s.deps.Uptimes != nil {
		loc, w, err = q.locate(s.deps.Uptimes, s.target, s.now(), s.visited)
	}
	if err != nil || loc == nil {
		s.window = timeline.Invalid
		s.deps.Reporter.LocationNotFound(s.target, s.hint)
		if err == nil {
			err = errors.New("no result")
		}
		return fmt.Errorf("%w for %s: %v", ErrLocationNotFound, s.target, err)
	}
	s.location = loc
	s.window = w
	return nil
}

// FinalizeCycle maintains the visited set once per request.
func (s *Session) FinalizeCycle() {
	s.lastReset = s.now().AddEorzeaHours(1)
	if !s.keepVisited {
		s.visited.Clear()
	}
	s.lastTarget = s.target
	if s.target != nil && s.location != nil {
		s.visited.Add(s.location)
	}
	if s.locationCount(s.lastTarget) == len(s.visited) {
		s.visited.Clear()
	}
}

func (s *Session) locationCount(t *catalogs.Target) int {
	if t == nil {
		return 0
	}
	if s.deps.Uptimes == nil {
		return t.LocationCount()
	}
	return s.deps.Uptimes.LocationCount(t)
}

// AcceptPickedLocation replaces the request with a location chosen directly by the user.
func (s *Session) AcceptPickedLocation(loc *catalogs.Location) {
	s.resetRequest(IdentifyNone, "")
	s.location = loc
	if loc == nil {
		s.hint = nil
		return
	}
	g := loc.GatheringType
	s.setHint(&g)
	s.window = timeline.Always
	if loc.IsPeriodic() {
		if s.deps.Uptimes != nil {
			s.window = s.deps.Uptimes.Uptime(nil, loc, s.now())
		} else {
			s.window = loc.NextUptime(s.now())
		}
	}
}

// Gather runs a full text request: "next" repeats the last target, "alarm" takes the
// last triggered alarm of kind, anything else is identified by name.
func (s *Session) Gather(text string, kind catalogs.Kind, hint *catalogs.GatheringType) error {
	word := strings.ToLower(strings.TrimSpace(text))
	if word == "" {
		return nil
	}
	var err error
	switch word {
	case "next":
		s.setHint(hint)
		err = s.RequestRepeatLast()
	case "alarm":
		err = s.RequestFromAlarm(kind)
		s.setHint(hint)
	default:
		err = s.RequestByName(word, kind, hint)
	}
	if err == nil {
		err = s.ResolveLocation()
	}
	s.FinalizeCycle()
	return err
}

// GatherTarget runs a full request for a known target.
func (s *Session) GatherTarget(t *catalogs.Target, hint *catalogs.GatheringType) error {
	err := s.RequestExplicit(t, hint)
	if err == nil {
		err = s.ResolveLocation()
	}
	s.FinalizeCycle()
	return err
}

// GatherLocation runs a full request for a picked location.
func (s *Session) GatherLocation(loc *catalogs.Location) {
	s.AcceptPickedLocation(loc)
	s.FinalizeCycle()
}

// Reset drops all request state, as on teardown.
func (s *Session) Reset() {
	s.resetRequest(IdentifyNone, "")
	s.hint = nil
	s.lastTarget = nil
	s.visited.Clear()
	s.lastReset = timeline.Epoch
}

type nopReporter struct{}

func (nopReporter) Print(string)                                               {}
func (nopReporter) PrintError(string)                                          {}
func (nopReporter) PrintIdentifiedItem(string, *catalogs.Target)               {}
func (nopReporter) LocationNotFound(*catalogs.Target, *catalogs.GatheringType) {}
