package fishtimer

import (
	"sort"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/records"
	"gatherbuddy.app/internal/sim/timeline"
)

type Uptimes interface {
	Uptime(target *catalogs.Target, loc *catalogs.Location, now timeline.Timestamp) timeline.Interval
}

type Filter struct {
	HideUncaught    bool
	HideUnavailable bool
}

type Row struct {
	Target *catalogs.Target
	Verdict
}

func RestrictionsOf(f *catalogs.Fish) Restrictions {
	if f == nil {
		return Restrictions{}
	}
	return Restrictions{
		Predators:         len(f.Predators),
		SnaggingRequired:  f.Snagging == catalogs.SnaggingRequired,
		WeatherRestricted: f.WeatherRestricted,
		BigFish:           f.BigFish,
		Exempt:            f.OceanFish,
	}
}

// Rows evaluates every fish of spot for the current cast and returns them in display
// order. Equal keys keep catalog order.
func Rows(e Engine, spot *catalogs.Location, store *records.Store, rec records.Record, up Uptimes, f Filter, now timeline.Timestamp) []Row {
	if spot == nil {
		return nil
	}
	rows := make([]Row, 0, len(spot.Targets))
	for _, t := range spot.Targets {
		if t.Fish == nil {
			continue
		}
		id := records.FishID(t.ID)
		c := Candidate{
			Fish:         id,
			Restrictions: RestrictionsOf(t.Fish),
			Effects:      rec.Effects,
			Observation:  store.Snapshot(id, rec.BaitID),
			NextWindow:   timeline.Always,
		}
		if !c.Restrictions.Exempt && up != nil {
			c.NextWindow = up.Uptime(t, spot, now)
		}
		v := e.Evaluate(c, now)
		if f.HideUncaught && !v.Caught {
			continue
		}
		if f.HideUnavailable && !v.Available {
			continue
		}
		rows = append(rows, Row{Target: t, Verdict: v})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SortKey < rows[j].SortKey })
	return rows
}
