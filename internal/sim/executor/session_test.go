package executor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"gatherbuddy.app/internal/sim/alarms"
	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/communicator"
	"gatherbuddy.app/internal/sim/identify"
	"gatherbuddy.app/internal/sim/timeline"
	"gatherbuddy.app/internal/sim/uptime"
)

type stepClock struct{ now timeline.Timestamp }

func (c *stepClock) ServerTime() timeline.Timestamp { return c.now }

type fixture struct {
	cat     *catalogs.Catalogs
	clock   *stepClock
	alarms  *alarms.Tracker
	msgs    []communicator.Message
	session *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	f := &fixture{
		cat:    c,
		clock:  &stepClock{now: timeline.Timestamp(timeline.EorzeaDayMs*3 + 3*timeline.EorzeaHourMs)},
		alarms: alarms.NewTracker(),
	}
	comm := communicator.New(communicator.SinkFunc(func(m communicator.Message) { f.msgs = append(f.msgs, m) }), f.clock)
	f.session = New(Deps{
		Identifier: identify.New(c),
		Uptimes:    uptime.New(),
		Alarms:     f.alarms,
		Clock:      f.clock,
		Reporter:   comm,
	})
	return f
}

func (f *fixture) node(t *testing.T, id uint32) *catalogs.Location {
	t.Helper()
	l, ok := f.cat.Location(id)
	if !ok {
		t.Fatalf("node %d missing", id)
	}
	return l
}

func TestGatherCyclesThroughLocations(t *testing.T) {
	f := newFixture(t)
	s := f.session

	if err := s.Gather("copper ore", catalogs.KindItem, nil); err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if s.State() != Located || s.Location() != f.node(t, 101) {
		t.Fatalf("first location=%v state=%v", s.Location(), s.State())
	}
	if s.VisitedCount() != 1 || s.KeepVisited() {
		t.Fatalf("visited=%d keep=%v", s.VisitedCount(), s.KeepVisited())
	}

	want := []uint32{102, 103, 101, 102}
	for i, id := range want {
		if err := s.Gather("next", catalogs.KindItem, nil); err != nil {
			t.Fatalf("next #%d: %v", i, err)
		}
		if s.Location() != f.node(t, id) {
			t.Fatalf("next #%d location=%d want %d", i, s.Location().ID, id)
		}
		if s.VisitedCount() >= s.Target().LocationCount() {
			t.Fatalf("next #%d visited=%d reached location count", i, s.VisitedCount())
		}
	}
}

func TestVisitedSetClearsOnceFull(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_ = s.Gather("copper ore", catalogs.KindItem, nil)
	_ = s.Gather("next", catalogs.KindItem, nil)
	if s.VisitedCount() != 2 {
		t.Fatalf("visited=%d", s.VisitedCount())
	}
	_ = s.Gather("next", catalogs.KindItem, nil)
	if s.VisitedCount() != 0 {
		t.Fatalf("visited=%d after third location, want 0", s.VisitedCount())
	}
}

func TestNewRequestForgetsVisited(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_ = s.Gather("copper ore", catalogs.KindItem, nil)
	_ = s.Gather("next", catalogs.KindItem, nil)
	if err := s.Gather("Copper Ore", catalogs.KindItem, nil); err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if s.VisitedCount() != 1 || !s.Visited(s.Location()) {
		t.Fatalf("fresh request must only remember its own location, visited=%d", s.VisitedCount())
	}
	if s.Location().ID != 101 {
		t.Fatalf("fresh request location=%d", s.Location().ID)
	}
}

func TestRepeatLastExpiresVisited(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_ = s.Gather("copper ore", catalogs.KindItem, nil)
	if want := f.clock.now.AddEorzeaHours(1); s.ResetDeadline() != want {
		t.Fatalf("deadline=%d want %d", s.ResetDeadline(), want)
	}
	f.clock.now = s.ResetDeadline() + 1
	if err := s.Gather("next", catalogs.KindItem, nil); err != nil {
		t.Fatalf("next: %v", err)
	}
	if s.Location().ID != 101 {
		t.Fatalf("expired cycle should restart at 101, got %d", s.Location().ID)
	}
}

func TestRepeatLastWithoutHistory(t *testing.T) {
	f := newFixture(t)
	s := f.session
	err := s.Gather("next", catalogs.KindItem, nil)
	if !errors.Is(err, ErrNoPreviousRequest) {
		t.Fatalf("err=%v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state=%v", s.State())
	}
	if len(f.msgs) == 0 || f.msgs[len(f.msgs)-1].Kind != communicator.KindError {
		t.Fatalf("expected an error report, got %+v", f.msgs)
	}
}

func TestUnknownNameClearsHistory(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_ = s.Gather("copper ore", catalogs.KindItem, nil)
	err := s.Gather("zzzzzzzzzzzz", catalogs.KindItem, nil)
	if !errors.Is(err, ErrNotIdentified) {
		t.Fatalf("err=%v", err)
	}
	if s.LastTarget() != nil || s.VisitedCount() != 0 {
		t.Fatalf("failed request must reset history: last=%v visited=%d", s.LastTarget(), s.VisitedCount())
	}
	if err := s.Gather("next", catalogs.KindItem, nil); !errors.Is(err, ErrNoPreviousRequest) {
		t.Fatalf("next after failure err=%v", err)
	}
}

func TestHintRestrictsLocations(t *testing.T) {
	f := newFixture(t)
	s := f.session
	quarry := catalogs.Quarrying
	if err := s.Gather("copper ore", catalogs.KindItem, &quarry); err != nil {
		t.Fatalf("Gather: %v", err)
	}
	// Quarrying widens to the miner group, so every copper node qualifies.
	if s.Hint() == nil || *s.Hint() != catalogs.Miner {
		t.Fatalf("hint=%v", s.Hint())
	}
	if s.Location().ID != 101 {
		t.Fatalf("location=%d", s.Location().ID)
	}

	btn := catalogs.Botanist
	err := s.Gather("copper ore", catalogs.KindItem, &btn)
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("err=%v", err)
	}
	if s.State() != Identifying || !s.Window().IsInvalid() {
		t.Fatalf("state=%v window=%v", s.State(), s.Window())
	}
	last := f.msgs[len(f.msgs)-1]
	if !strings.Contains(last.Text, "condition botanist") {
		t.Fatalf("not found message=%q", last.Text)
	}
}

func TestGatherFromAlarm(t *testing.T) {
	f := newFixture(t)
	s := f.session
	if err := s.Gather("alarm", catalogs.KindItem, nil); !errors.Is(err, ErrNotIdentified) {
		t.Fatalf("no alarm err=%v", err)
	}
	mushroom, _ := f.cat.Target(catalogs.KindItem, 12534)
	f.alarms.Trigger(alarms.Triggered{Name: "mushroom", Target: mushroom, At: f.clock.now})
	if err := s.Gather("alarm", catalogs.KindItem, nil); err != nil {
		t.Fatalf("Gather alarm: %v", err)
	}
	if s.Target() != mushroom || s.Location().ID != 201 {
		t.Fatalf("target=%v location=%v", s.Target(), s.Location())
	}
	if s.Window().Start.EorzeaHour() != 8 {
		t.Fatalf("window=%v", s.Window())
	}
}

func TestGatherPickedLocation(t *testing.T) {
	f := newFixture(t)
	s := f.session
	_ = s.Gather("copper ore", catalogs.KindItem, nil)

	n := f.node(t, 201)
	s.GatherLocation(n)
	if s.Target() != nil || s.Location() != n || s.State() != Located {
		t.Fatalf("target=%v location=%v", s.Target(), s.Location())
	}
	if s.Hint() == nil || *s.Hint() != catalogs.Botanist {
		t.Fatalf("hint=%v", s.Hint())
	}
	if s.Window().Start.EorzeaHour() != 8 {
		t.Fatalf("periodic node window=%v", s.Window())
	}
	if s.LastTarget() != nil || s.VisitedCount() != 0 {
		t.Fatalf("picked location should reset history")
	}

	s.GatherLocation(f.node(t, 101))
	if !s.Window().IsAlways() {
		t.Fatalf("non-periodic node window=%v", s.Window())
	}
}

type recordingUptimes struct {
	calls []string
}

func (r *recordingUptimes) record(name string, t *catalogs.Target) (*catalogs.Location, timeline.Interval, error) {
	r.calls = append(r.calls, name)
	return t.Locations[0], timeline.Always, nil
}

func (r *recordingUptimes) BestLocation(t *catalogs.Target, _ timeline.Timestamp) (*catalogs.Location, timeline.Interval, error) {
	return r.record("best", t)
}

func (r *recordingUptimes) NextUptimeOfType(t *catalogs.Target, _ catalogs.GatheringType, _ timeline.Timestamp) (*catalogs.Location, timeline.Interval, error) {
	return r.record("typed", t)
}

func (r *recordingUptimes) NextUptimeExcluding(t *catalogs.Target, _ timeline.Timestamp, _ catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return r.record("excluding", t)
}

func (r *recordingUptimes) NextUptimeOfTypeExcluding(t *catalogs.Target, _ catalogs.GatheringType, _ timeline.Timestamp, _ catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return r.record("typed-excluding", t)
}

func (r *recordingUptimes) Uptime(*catalogs.Target, *catalogs.Location, timeline.Timestamp) timeline.Interval {
	return timeline.Always
}

func (r *recordingUptimes) LocationCount(t *catalogs.Target) int { return 10 }

func TestResolveLocationQuerySelection(t *testing.T) {
	loc := &catalogs.Location{ID: 1, GatheringType: catalogs.Mining}
	target := &catalogs.Target{ID: 9, Name: "Ore", Locations: []*catalogs.Location{loc}}
	up := &recordingUptimes{}
	s := New(Deps{Uptimes: up, Clock: timeline.FixedClock(0)})
	miner := catalogs.Miner

	_ = s.GatherTarget(target, nil)
	_ = s.GatherTarget(target, &miner)
	_ = s.RequestRepeatLast()
	_ = s.ResolveLocation()
	s.FinalizeCycle()
	_ = s.RequestExplicit(target, nil)
	_ = s.RequestRepeatLast()
	_ = s.ResolveLocation()

	want := []string{"best", "typed", "typed-excluding", "excluding"}
	if strings.Join(up.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls=%v want %v", up.calls, want)
	}
}

func TestResolveWithoutTargetIsNoop(t *testing.T) {
	up := &recordingUptimes{}
	s := New(Deps{Uptimes: up})
	if err := s.ResolveLocation(); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(up.calls) != 0 || s.State() != Idle {
		t.Fatalf("calls=%v state=%v", up.calls, s.State())
	}
}
