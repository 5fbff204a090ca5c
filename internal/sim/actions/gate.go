package actions

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gatherbuddy.app/internal/config"
	"gatherbuddy.app/internal/sim/catalogs"
	"gatherbuddy.app/internal/sim/communicator"
	"gatherbuddy.app/internal/sim/timeline"
)

var (
	ErrMissingDisciplineMapping = errors.New("no gear set mapping for gathering type")
	ErrEmptyLoadoutName         = errors.New("gear set name is empty")
	ErrInvalidCoordinates       = errors.New("location has no coordinates")
	ErrNoLocation               = errors.New("no location")
	ErrNoAetheryte              = errors.New("no attuned aetheryte")
	ErrUnknownAction            = errors.New("unknown action")
)

type Action string

const (
	ActionTeleport Action = "teleport"
	ActionGearset  Action = "gearset"
	ActionFlag     Action = "flag"
	ActionInfo     Action = "info"
)

// DefaultMacro is the follow-up sequence run after every gather request.
var DefaultMacro = []Action{ActionTeleport, ActionGearset, ActionFlag, ActionInfo}

func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionTeleport, ActionGearset, ActionFlag, ActionInfo:
		return a, true
	}
	return "", false
}

type Decision struct {
	Action Action
	Fired  bool
	Reason string
}

func fired(a Action) Decision { return Decision{Action: a, Fired: true} }

func skipped(a Action, reason string) Decision {
	return Decision{Action: a, Reason: reason}
}

type Reporter interface {
	PrintError(text string)
	PrintCoordinates(link communicator.MapLink)
	PrintUptime(w timeline.Interval)
}

type Gate struct {
	actions  config.Actions
	gearSets config.GearSets
	env      Env
	report   Reporter
}

func New(cfg config.Config, env Env, report Reporter) *Gate {
	a := cfg.Actions
	if a.SkipTeleportRatio <= 0 {
		a.SkipTeleportRatio = config.DefaultSkipTeleportRatio
	}
	return &Gate{actions: a, gearSets: cfg.GearSets, env: env, report: report}
}

func (g *Gate) printError(text string) {
	if g.report != nil {
		g.report.PrintError(text)
	}
}

// NodeToMap converts a world coordinate to integral map units (map coordinate * 100) for
// a territory with the given size factor.
func NodeToMap(v float32, sizeFactor float32) int {
	if sizeFactor <= 0 {
		sizeFactor = 100
	}
	c := float64(sizeFactor) / 100
	m := (41/c)*((float64(v)*c+1024)/2048) + 1
	return int(math.Round(m * 100))
}

// MapToNode is the inverse of NodeToMap: the world coordinate at the given integral map
// units.
func MapToNode(mapUnits int, sizeFactor float32) float32 {
	if sizeFactor <= 0 {
		sizeFactor = 100
	}
	c := float64(sizeFactor) / 100
	m := float64(mapUnits) / 100
	return float32(((m-1)*c/41*2048 - 1024) / c)
}

// closeEnough reports whether the player is near enough to the node that teleporting is
// not worth it. Both distances are rooted and in integral map units.
func closeEnough(playerDist, aetheryteDist, ratio float64) bool {
	return playerDist < aetheryteDist*ratio
}

// Move teleports to the aetheryte of loc unless the player already stands close to it.
func (g *Gate) Move(loc *catalogs.Location) (Decision, error) {
	if !g.actions.UseTeleport {
		return skipped(ActionTeleport, "disabled"), nil
	}
	if loc == nil {
		return skipped(ActionTeleport, "no location"), nil
	}
	if loc.Aetheryte == nil || loc.Aetheryte.ID == 0 {
		return skipped(ActionTeleport, "no aetheryte"), nil
	}
	if g.actions.SkipTeleportIfClose && loc.Territory != nil {
		if terr, ok := g.env.PlayerTerritory(); ok && terr == loc.Territory.ID {
			if x, z, ok := g.env.PlayerPosition(); ok {
				px := NodeToMap(x, loc.Territory.SizeFactor)
				py := NodeToMap(z, loc.Territory.SizeFactor)
				player := math.Hypot(float64(px-loc.X), float64(py-loc.Y))
				aetheryte := loc.Aetheryte.MapDistance(loc.Territory.ID, loc.X, loc.Y)
				if closeEnough(player, aetheryte, g.actions.SkipTeleportRatio) {
					return skipped(ActionTeleport, "already close"), nil
				}
			}
		}
	}
	if !g.env.IsAttuned(loc.Aetheryte.ID) {
		g.printError(fmt.Sprintf("Not attuned to %s.", loc.Aetheryte.Name))
		return skipped(ActionTeleport, "not attuned"), fmt.Errorf("%w: %s", ErrNoAetheryte, loc.Aetheryte.Name)
	}
	if err := g.env.Teleport(loc.Aetheryte.ID); err != nil {
		g.printError(fmt.Sprintf("Could not teleport to %s.", loc.Aetheryte.Name))
		return skipped(ActionTeleport, "teleport failed"), fmt.Errorf("teleport %d: %w", loc.Aetheryte.ID, err)
	}
	return fired(ActionTeleport), nil
}

// TeleportToTerritory teleports to the first attuned aetheryte of t.
func (g *Gate) TeleportToTerritory(t *catalogs.Territory) (Decision, error) {
	if t == nil {
		return skipped(ActionTeleport, "no territory"), ErrNoLocation
	}
	if len(t.Aetherytes) == 0 {
		g.printError(fmt.Sprintf("%s has no valid aetheryte.", t.Name))
		return skipped(ActionTeleport, "no aetheryte"), fmt.Errorf("%w in %s", ErrNoAetheryte, t.Name)
	}
	for _, a := range t.Aetherytes {
		if !g.env.IsAttuned(a.ID) {
			continue
		}
		if err := g.env.Teleport(a.ID); err != nil {
			return skipped(ActionTeleport, "teleport failed"), fmt.Errorf("teleport %d: %w", a.ID, err)
		}
		return fired(ActionTeleport), nil
	}
	g.printError(fmt.Sprintf("Not attuned to any aetheryte in %s.", t.Name))
	return skipped(ActionTeleport, "not attuned"), fmt.Errorf("%w in %s", ErrNoAetheryte, t.Name)
}

// ChangeLoadout switches to the gear set configured for the job group of loc.
func (g *Gate) ChangeLoadout(loc *catalogs.Location) (Decision, error) {
	if !g.actions.UseGearChange {
		return skipped(ActionGearset, "disabled"), nil
	}
	if loc == nil {
		return skipped(ActionGearset, "no location"), nil
	}
	name, ok := g.gearSets.For(loc.GatheringType.ToGroup())
	if !ok {
		g.printError(fmt.Sprintf("No job type associated with location %s.", loc.Name))
		return skipped(ActionGearset, "no mapping"), fmt.Errorf("%w: %s", ErrMissingDisciplineMapping, loc.GatheringType)
	}
	if name == "" {
		g.printError(fmt.Sprintf("No gear set for %s configured.", loc.GatheringType))
		return skipped(ActionGearset, "empty name"), fmt.Errorf("%w: %s", ErrEmptyLoadoutName, loc.GatheringType.ToGroup())
	}
	if err := g.env.Command(fmt.Sprintf("/gearset change %q", name)); err != nil {
		return skipped(ActionGearset, "command failed"), fmt.Errorf("gearset %q: %w", name, err)
	}
	return fired(ActionGearset), nil
}

// MarkWaypoint prints and/or sets a map flag at the coordinates of loc.
func (g *Gate) MarkWaypoint(loc *catalogs.Location) (Decision, error) {
	if !g.actions.WriteCoordinates && !g.actions.UseCoordinates {
		return skipped(ActionFlag, "disabled"), nil
	}
	if loc == nil {
		return skipped(ActionFlag, "no location"), nil
	}
	if !loc.HasCoordinates() {
		g.printError(fmt.Sprintf("%s has no known coordinates.", loc.Name))
		return skipped(ActionFlag, "no coordinates"), fmt.Errorf("%w: %s", ErrInvalidCoordinates, loc.Name)
	}
	link := MapLinkFor(loc)
	if g.actions.WriteCoordinates && g.report != nil {
		g.report.PrintCoordinates(link)
	}
	if g.actions.UseCoordinates {
		if err := g.env.Waypoint(link); err != nil {
			return skipped(ActionFlag, "waypoint failed"), fmt.Errorf("waypoint: %w", err)
		}
	}
	return fired(ActionFlag), nil
}

func MapLinkFor(loc *catalogs.Location) communicator.MapLink {
	link := communicator.MapLink{
		Name: loc.Name,
		X:    float32(loc.X) / 100,
		Y:    float32(loc.Y) / 100,
	}
	if loc.Territory != nil {
		link.Territory = loc.Territory.ID
		link.TerritoryName = loc.Territory.Name
	}
	return link
}

func (g *Gate) ReportStatus(w timeline.Interval) (Decision, error) {
	if g.report != nil {
		g.report.PrintUptime(w)
	}
	return fired(ActionInfo), nil
}

func (g *Gate) Do(a Action, loc *catalogs.Location, w timeline.Interval) (Decision, error) {
	switch a {
	case ActionTeleport:
		return g.Move(loc)
	case ActionGearset:
		return g.ChangeLoadout(loc)
	case ActionFlag:
		return g.MarkWaypoint(loc)
	case ActionInfo:
		return g.ReportStatus(w)
	}
	return skipped(a, "unknown"), fmt.Errorf("%w: %q", ErrUnknownAction, a)
}

// Run executes every action in order. A failing action does not stop the ones after it.
func (g *Gate) Run(loc *catalogs.Location, w timeline.Interval, seq ...Action) ([]Decision, error) {
	out := make([]Decision, 0, len(seq))
	var errs []error
	for _, a := range seq {
		d, err := g.Do(a, loc, w)
		out = append(out, d)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}
