package alarms

import (
	"sync"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

type Triggered struct {
	Name     string
	Target   *catalogs.Target
	Location *catalogs.Location
	At       timeline.Timestamp
}

// Tracker remembers the most recently triggered alarm of each kind.
type Tracker struct {
	mu   sync.Mutex
	last map[catalogs.Kind]Triggered
}

func NewTracker() *Tracker {
	return &Tracker{last: map[catalogs.Kind]Triggered{}}
}

func (t *Tracker) Trigger(a Triggered) {
	if a.Target == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[a.Target.Kind] = a
}

// Last returns the target of the latest alarm of kind, or nil.
func (t *Tracker) Last(kind catalogs.Kind) *catalogs.Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.last[kind]
	if !ok {
		return nil
	}
	return a.Target
}

func (t *Tracker) LastAlarm(kind catalogs.Kind) (Triggered, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.last[kind]
	return a, ok
}
