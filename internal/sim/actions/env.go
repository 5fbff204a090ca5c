package actions

import "gatherbuddy.app/internal/sim/communicator"

// Env is the host surface the gate drives. Missing callbacks behave as if the host
// cannot answer or silently accepts the request.
type Env struct {
	PlayerTerritoryFn func() (uint32, bool)
	PlayerPositionFn  func() (x, z float32, ok bool)
	IsAttunedFn       func(aetheryteID uint32) bool
	TeleportFn        func(aetheryteID uint32) error
	CommandFn         func(command string) error
	WaypointFn        func(link communicator.MapLink) error
}

func (e Env) PlayerTerritory() (uint32, bool) {
	if e.PlayerTerritoryFn == nil {
		return 0, false
	}
	return e.PlayerTerritoryFn()
}

func (e Env) PlayerPosition() (float32, float32, bool) {
	if e.PlayerPositionFn == nil {
		return 0, 0, false
	}
	return e.PlayerPositionFn()
}

func (e Env) IsAttuned(aetheryteID uint32) bool {
	if e.IsAttunedFn == nil {
		return true
	}
	return e.IsAttunedFn(aetheryteID)
}

func (e Env) Teleport(aetheryteID uint32) error {
	if e.TeleportFn == nil {
		return nil
	}
	return e.TeleportFn(aetheryteID)
}

func (e Env) Command(command string) error {
	if e.CommandFn == nil {
		return nil
	}
	return e.CommandFn(command)
}

func (e Env) Waypoint(link communicator.MapLink) error {
	if e.WaypointFn == nil {
		return nil
	}
	return e.WaypointFn(link)
}
