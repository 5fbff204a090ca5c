package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"gatherbuddy.app/internal/sim/catalogs"
)

type Config struct {
	Version int `yaml:"version" json:"version"`

	GearSets  GearSets  `yaml:"gear_sets" json:"gear_sets"`
	Actions   Actions   `yaml:"actions" json:"actions"`
	FishTimer FishTimer `yaml:"fish_timer" json:"fish_timer"`
	Alarms    Alarms    `yaml:"alarms" json:"alarms"`

	StoreFishRecords bool `yaml:"store_fish_records" json:"store_fish_records"`
}

type GearSets struct {
	Botanist string `yaml:"botanist" json:"botanist"`
	Miner    string `yaml:"miner" json:"miner"`
	Fisher   string `yaml:"fisher" json:"fisher"`
}

// For returns the configured set name for a job group. ok is false when the group has
// no mapping at all; an empty name with ok=true means the mapping is not filled in.
func (g GearSets) For(group catalogs.GatheringType) (name string, ok bool) {
	switch group {
	case catalogs.Botanist:
		return g.Botanist, true
	case catalogs.Miner:
		return g.Miner, true
	case catalogs.Fisher:
		return g.Fisher, true
	}
	return "", false
}

type Actions struct {
	UseGearChange       bool    `yaml:"use_gear_change" json:"use_gear_change"`
	UseTeleport         bool    `yaml:"use_teleport" json:"use_teleport"`
	SkipTeleportIfClose bool    `yaml:"skip_teleport_if_close" json:"skip_teleport_if_close"`
	SkipTeleportRatio   float64 `yaml:"skip_teleport_ratio" json:"skip_teleport_ratio"`
	UseCoordinates      bool    `yaml:"use_coordinates" json:"use_coordinates"`
	WriteCoordinates    bool    `yaml:"write_coordinates" json:"write_coordinates"`
	PrintUptime         bool    `yaml:"print_uptime" json:"print_uptime"`
}

type FishTimer struct {
	Show            bool   `yaml:"show" json:"show"`
	ShowUptimes     bool   `yaml:"show_uptimes" json:"show_uptimes"`
	HideUncaught    bool   `yaml:"hide_uncaught" json:"hide_uncaught"`
	HideUnavailable bool   `yaml:"hide_unavailable" json:"hide_unavailable"`
	Scale           uint16 `yaml:"scale" json:"scale"`
}

type Alarms struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	InDuty           bool `yaml:"in_duty" json:"in_duty"`
	OnlyWhenLoggedIn bool `yaml:"only_when_logged_in" json:"only_when_logged_in"`
}

const DefaultSkipTeleportRatio = 1.5

func Defaults() Config {
	return Config{
		Version: 4,
		GearSets: GearSets{
			Botanist: "BTN",
			Miner:    "MIN",
			Fisher:   "FSH",
		},
		Actions: Actions{
			UseGearChange:       true,
			UseTeleport:         true,
			SkipTeleportIfClose: true,
			SkipTeleportRatio:   DefaultSkipTeleportRatio,
			UseCoordinates:      true,
			WriteCoordinates:    true,
			PrintUptime:         true,
		},
		FishTimer: FishTimer{
			Show:        true,
			ShowUptimes: true,
			Scale:       40000,
		},
		Alarms: Alarms{
			InDuty: true,
		},
		StoreFishRecords: true,
	}
}

//go:embed config.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("config.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Load reads a YAML config on top of Defaults. Keys missing from the file keep their
// default values.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := Validate(raw); err != nil {
		return c, fmt.Errorf("config.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config.yaml: %w", err)
	}
	if c.Actions.SkipTeleportRatio <= 0 {
		c.Actions.SkipTeleportRatio = DefaultSkipTeleportRatio
	}
	return c, nil
}

// Validate checks a YAML document against the config schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so numbers and maps have the shapes the validator expects.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}

func Save(path string, c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
