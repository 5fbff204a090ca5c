package uptime

import (
	"errors"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

var ErrNoLocation = errors.New("no location")

// Manager answers location queries from the precomputed schedules carried by the catalog.
// It does not derive schedules from weather.
type Manager struct{}

func New() *Manager { return &Manager{} }

// Uptime is the next window of target at loc.
func (m *Manager) Uptime(target *catalogs.Target, loc *catalogs.Location, now timeline.Timestamp) timeline.Interval {
	if loc == nil {
		return timeline.Invalid
	}
	if target != nil && target.Fish != nil && loc.Kind == catalogs.LocationSpot {
		return target.Fish.Schedule.NextUptime(now)
	}
	return loc.NextUptime(now)
}

func (m *Manager) BestLocation(target *catalogs.Target, now timeline.Timestamp) (*catalogs.Location, timeline.Interval, error) {
	return m.pick(target, now, func(*catalogs.Location) bool { return true })
}

func (m *Manager) NextUptimeOfType(target *catalogs.Target, gt catalogs.GatheringType, now timeline.Timestamp) (*catalogs.Location, timeline.Interval, error) {
	group := gt.ToGroup()
	return m.pick(target, now, func(l *catalogs.Location) bool {
		return l.GatheringType.ToGroup() == group
	})
}

func (m *Manager) NextUptimeExcluding(target *catalogs.Target, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return m.pick(target, now, func(l *catalogs.Location) bool { return !visited.Has(l) })
}

func (m *Manager) NextUptimeOfTypeExcluding(target *catalogs.Target, gt catalogs.GatheringType, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	group := gt.ToGroup()
	return m.pick(target, now, func(l *catalogs.Location) bool {
		return l.GatheringType.ToGroup() == group && !visited.Has(l)
	})
}

func (m *Manager) LocationCount(target *catalogs.Target) int {
	return target.LocationCount()
}

// pick prefers locations that are up now, then the earliest upcoming window, then
// locations reachable by teleport, then the lowest id.
func (m *Manager) pick(target *catalogs.Target, now timeline.Timestamp, keep func(*catalogs.Location) bool) (*catalogs.Location, timeline.Interval, error) {
	if target == nil {
		return nil, timeline.Invalid, ErrNoLocation
	}
	var (
		best       *catalogs.Location
		bestWindow timeline.Interval
		bestStart  timeline.Timestamp
	)
	better := func(l *catalogs.Location, start timeline.Timestamp, w timeline.Interval) bool {
		if best == nil {
			return true
		}
		if start != bestStart {
			return start < bestStart
		}
		if w.End != bestWindow.End {
			return w.End < bestWindow.End
		}
		if (l.Aetheryte != nil) != (best.Aetheryte != nil) {
			return l.Aetheryte != nil
		}
		return l.ID < best.ID
	}
	for _, l := range target.Locations {
		if !keep(l) {
			continue
		}
		w := m.Uptime(target, l, now)
		if w.IsNever() || w.IsInvalid() {
			continue
		}
		start := w.Start
		if w.IsAlways() || start < now {
			start = now
		}
		if better(l, start, w) {
			best, bestWindow, bestStart = l, w, start
		}
	}
	if best == nil {
		return nil, timeline.Invalid, ErrNoLocation
	}
	return best, bestWindow, nil
}
