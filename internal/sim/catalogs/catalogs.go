package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Territories map[uint32]*Territory
	Aetherytes  map[uint32]*Aetheryte
	Items       map[uint32]*Target
	Fish        map[uint32]*Target
	Nodes       map[uint32]*Location
	Spots       map[uint32]*Location

	Digest string
}

type TerritoryDef struct {
	ID         uint32  `json:"id"`
	Name       string  `json:"name"`
	SizeFactor float32 `json:"size_factor"`
}

type AetheryteDef struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Territory uint32 `json:"territory"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
}

type ItemDef struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

type FishDef struct {
	ID                uint32   `json:"id"`
	Name              string   `json:"name"`
	Predators         []uint32 `json:"predators,omitempty"`
	Snagging          string   `json:"snagging,omitempty"` // "", "required"
	WeatherRestricted bool     `json:"weather_restricted,omitempty"`
	BigFish           bool     `json:"big_fish,omitempty"`
	OceanFish         bool     `json:"ocean_fish,omitempty"`
	Schedule          Schedule `json:"schedule,omitempty"`
}

type LocationDef struct {
	ID        uint32   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"` // "mining","quarrying","logging","harvesting","fishing","spearfishing"
	Territory uint32   `json:"territory"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	Aetheryte uint32   `json:"aetheryte,omitempty"`
	Schedule  Schedule `json:"schedule,omitempty"`
	Yields    []uint32 `json:"yields"`
}

// Defs is the raw catalog content, as read from the config directory.
type Defs struct {
	Territories []TerritoryDef
	Aetherytes  []AetheryteDef
	Items       []ItemDef
	Fish        []FishDef
	Nodes       []LocationDef
	Spots       []LocationDef
}

func Load(configDir string) (*Catalogs, error) {
	var (
		defs   Defs
		digest = sha256.New()
	)
	files := []struct {
		name string
		out  any
	}{
		{"territories.json", &defs.Territories},
		{"aetherytes.json", &defs.Aetherytes},
		{"items.json", &defs.Items},
		{"fish.json", &defs.Fish},
		{"nodes.json", &defs.Nodes},
		{"spots.json", &defs.Spots},
	}
	for _, f := range files {
		raw, err := os.ReadFile(filepath.Join(configDir, f.name))
		if err != nil {
			// Catalogs without fish or without nodes are allowed.
			if os.IsNotExist(err) && f.name != "territories.json" {
				continue
			}
			return nil, err
		}
		digest.Write(raw)
		if err := json.Unmarshal(raw, f.out); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	c, err := Build(defs)
	if err != nil {
		return nil, err
	}
	c.Digest = hex.EncodeToString(digest.Sum(nil))
	return c, nil
}

// Build links definitions into a catalog. Cross references must resolve.
func Build(defs Defs) (*Catalogs, error) {
	c := &Catalogs{
		Territories: map[uint32]*Territory{},
		Aetherytes:  map[uint32]*Aetheryte{},
		Items:       map[uint32]*Target{},
		Fish:        map[uint32]*Target{},
		Nodes:       map[uint32]*Location{},
		Spots:       map[uint32]*Location{},
	}

	for _, d := range defs.Territories {
		if d.ID == 0 {
			return nil, fmt.Errorf("territories.json: empty id")
		}
		sf := d.SizeFactor
		if sf <= 0 {
			sf = 100
		}
		c.Territories[d.ID] = &Territory{ID: d.ID, Name: d.Name, SizeFactor: sf}
	}
	for _, d := range defs.Aetherytes {
		t, ok := c.Territories[d.Territory]
		if !ok {
			return nil, fmt.Errorf("aetherytes.json: %d: unknown territory %d", d.ID, d.Territory)
		}
		a := &Aetheryte{ID: d.ID, Name: d.Name, Territory: t, X: d.X, Y: d.Y}
		c.Aetherytes[d.ID] = a
		t.Aetherytes = append(t.Aetherytes, a)
	}
	for _, d := range defs.Items {
		if d.ID == 0 {
			return nil, fmt.Errorf("items.json: empty id")
		}
		c.Items[d.ID] = &Target{ID: d.ID, Kind: KindItem, Name: d.Name}
	}
	for _, d := range defs.Fish {
		if d.ID == 0 {
			return nil, fmt.Errorf("fish.json: empty id")
		}
		f := &Fish{
			Predators:         append([]uint32(nil), d.Predators...),
			WeatherRestricted: d.WeatherRestricted,
			BigFish:           d.BigFish,
			OceanFish:         d.OceanFish,
			Schedule:          d.Schedule,
		}
		if d.Snagging == "required" {
			f.Snagging = SnaggingRequired
		}
		c.Fish[d.ID] = &Target{ID: d.ID, Kind: KindFish, Name: d.Name, Fish: f}
	}

	link := func(file string, d LocationDef, kind LocationKind, yields map[uint32]*Target) (*Location, error) {
		t, ok := c.Territories[d.Territory]
		if !ok {
			return nil, fmt.Errorf("%s: %d: unknown territory %d", file, d.ID, d.Territory)
		}
		loc := &Location{
			ID:            d.ID,
			Name:          d.Name,
			Kind:          kind,
			GatheringType: ParseGatheringType(d.Type),
			Territory:     t,
			X:             d.X,
			Y:             d.Y,
			Schedule:      d.Schedule,
		}
		if d.Aetheryte != 0 {
			a, ok := c.Aetherytes[d.Aetheryte]
			if !ok {
				return nil, fmt.Errorf("%s: %d: unknown aetheryte %d", file, d.ID, d.Aetheryte)
			}
			loc.Aetheryte = a
		} else {
			loc.Aetheryte = closestAetheryte(t, d.X, d.Y)
		}
		for _, id := range d.Yields {
			target, ok := yields[id]
			if !ok {
				return nil, fmt.Errorf("%s: %d: unknown yield %d", file, d.ID, id)
			}
			loc.Targets = append(loc.Targets, target)
			target.Locations = append(target.Locations, loc)
		}
		return loc, nil
	}

	for _, d := range sortedDefs(defs.Nodes) {
		loc, err := link("nodes.json", d, LocationNode, c.Items)
		if err != nil {
			return nil, err
		}
		c.Nodes[d.ID] = loc
	}
	for _, d := range sortedDefs(defs.Spots) {
		loc, err := link("spots.json", d, LocationSpot, c.Fish)
		if err != nil {
			return nil, err
		}
		c.Spots[d.ID] = loc
	}
	return c, nil
}

// Location finds a node or spot by id. Nodes win on collisions.
func (c *Catalogs) Location(id uint32) (*Location, bool) {
	if l, ok := c.Nodes[id]; ok {
		return l, true
	}
	l, ok := c.Spots[id]
	return l, ok
}

func (c *Catalogs) Target(kind Kind, id uint32) (*Target, bool) {
	var t *Target
	var ok bool
	switch kind {
	case KindItem:
		t, ok = c.Items[id]
	case KindFish:
		t, ok = c.Fish[id]
	}
	return t, ok
}

// Targets lists every target of kind in id order.
func (c *Catalogs) Targets(kind Kind) []*Target {
	src := c.Items
	if kind == KindFish {
		src = c.Fish
	}
	out := make([]*Target, 0, len(src))
	for _, t := range src {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func closestAetheryte(t *Territory, x, y int) *Aetheryte {
	var (
		best     *Aetheryte
		bestDist float64
	)
	for _, a := range t.Aetherytes {
		d := a.MapDistance(t.ID, x, y)
		if best == nil || d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

func sortedDefs(in []LocationDef) []LocationDef {
	out := append([]LocationDef(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
