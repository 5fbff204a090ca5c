package executor

import (
	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

// query is one of the four location lookups. The set is closed.
type query interface {
	locate(u Uptimes, t *catalogs.Target, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error)
}

type bestQuery struct{}

type typedQuery struct{ group catalogs.GatheringType }

type excludingQuery struct{}

type typedExcludingQuery struct{ group catalogs.GatheringType }

func selectQuery(keepVisited bool, hint *catalogs.GatheringType) query {
	switch {
	case keepVisited && hint != nil:
		return typedExcludingQuery{group: *hint}
	case keepVisited:
		return excludingQuery{}
	case hint != nil:
		return typedQuery{group: *hint}
	}
	return bestQuery{}
}

func (bestQuery) locate(u Uptimes, t *catalogs.Target, now timeline.Timestamp, _ catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return u.BestLocation(t, now)
}

func (q typedQuery) locate(u Uptimes, t *catalogs.Target, now timeline.Timestamp, _ catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return u.NextUptimeOfType(t, q.group, now)
}

func (excludingQuery) locate(u Uptimes, t *catalogs.Target, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return u.NextUptimeExcluding(t, now, visited)
}

func (q typedExcludingQuery) locate(u Uptimes, t *catalogs.Target, now timeline.Timestamp, visited catalogs.LocationSet) (*catalogs.Location, timeline.Interval, error) {
	return u.NextUptimeOfTypeExcluding(t, q.group, now, visited)
}
