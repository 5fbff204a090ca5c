package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrUnknownCommand    = "E_UNKNOWN_COMMAND"
	ErrNotIdentified     = "E_NOT_IDENTIFIED"
	ErrLocationNotFound  = "E_LOCATION_NOT_FOUND"
	ErrNoPreviousRequest = "E_NO_PREVIOUS_REQUEST"
	ErrConfig            = "E_CONFIG"
	ErrBusy              = "E_BUSY"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrUnknownCommand:    {},
	ErrNotIdentified:     {},
	ErrLocationNotFound:  {},
	ErrNoPreviousRequest: {},
	ErrConfig:            {},
	ErrBusy:              {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
