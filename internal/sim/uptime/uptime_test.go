package uptime

import (
	"errors"
	"path/filepath"
	"testing"

	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/timeline"
)

func sample(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs.Load: %v", err)
	}
	return c
}

func TestBestLocationPrefersLowestIDOnTies(t *testing.T) {
	c := sample(t)
	m := New()
	ore := c.Items[5111]
	loc, w, err := m.BestLocation(ore, 0)
	if err != nil {
		t.Fatalf("BestLocation: %v", err)
	}
	if loc.ID != 101 || !w.IsAlways() {
		t.Fatalf("BestLocation=%d %v", loc.ID, w)
	}
}

func TestNextUptimeExcluding(t *testing.T) {
	c := sample(t)
	m := New()
	ore := c.Items[5111]
	visited := catalogs.LocationSet{}
	visited.Add(c.Nodes[101])
	loc, _, err := m.NextUptimeExcluding(ore, 0, visited)
	if err != nil || loc.ID != 102 {
		t.Fatalf("NextUptimeExcluding=%v,%v", loc, err)
	}
	visited.Add(c.Nodes[102])
	visited.Add(c.Nodes[103])
	if _, _, err := m.NextUptimeExcluding(ore, 0, visited); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("expected ErrNoLocation, got %v", err)
	}
}

func TestNextUptimeOfType(t *testing.T) {
	c := sample(t)
	m := New()
	ore := c.Items[5111]
	loc, _, err := m.NextUptimeOfType(ore, catalogs.Miner, 0)
	if err != nil || loc.ID != 101 {
		t.Fatalf("NextUptimeOfType(miner)=%v,%v", loc, err)
	}
	if _, _, err := m.NextUptimeOfType(ore, catalogs.Botanist, 0); err == nil {
		t.Fatalf("no botanist node yields copper ore")
	}
	visited := catalogs.LocationSet{}
	visited.Add(c.Nodes[101])
	loc, _, err = m.NextUptimeOfTypeExcluding(ore, catalogs.Mining, 0, visited)
	if err != nil || loc.ID != 102 {
		t.Fatalf("NextUptimeOfTypeExcluding=%v,%v", loc, err)
	}
}

func TestFishUptimeUsesFishSchedule(t *testing.T) {
	c := sample(t)
	m := New()
	cloud := c.Fish[4904]
	now := timeline.Timestamp(timeline.EorzeaDayMs*2 + 3*timeline.EorzeaHourMs)
	loc, w, err := m.BestLocation(cloud, now)
	if err != nil {
		t.Fatalf("BestLocation: %v", err)
	}
	if loc.ID != 1 {
		t.Fatalf("ocean cloud spot=%d", loc.ID)
	}
	if w.Start.EorzeaHour() != 18 || w.Contains(now) {
		t.Fatalf("window should open at 18:00, got %v", w)
	}
}
