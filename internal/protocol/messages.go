package protocol

// HELLO (overlay -> host)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (host -> overlay)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	CatalogDigest   string `json:"catalog_digest"`
	ServerTime      int64  `json:"server_time"`
}

// COMMAND (overlay -> host): one command line, e.g. "gather copper ore".
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	Line            string `json:"line"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

type MapLink struct {
	Name          string  `json:"name"`
	Territory     uint32  `json:"territory"`
	TerritoryName string  `json:"territory_name"`
	X             float32 `json:"x"`
	Y             float32 `json:"y"`
}

// REPORT (host -> overlay): a chat line for the user.
type ReportMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Kind            string   `json:"kind"`
	Text            string   `json:"text"`
	Link            *MapLink `json:"link,omitempty"`
}

// WAYPOINT (host -> overlay): place a map flag.
type WaypointMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Link            MapLink `json:"link"`
}

type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// STATUS (host -> overlay): the session after a request.
type StatusMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	State           string  `json:"state"`
	Target          string  `json:"target,omitempty"`
	Location        uint32  `json:"location,omitempty"`
	LocationName    string  `json:"location_name,omitempty"`
	Window          *Window `json:"window,omitempty"`
	Visited         int     `json:"visited"`
}

type FishRow struct {
	Fish      uint32  `json:"fish"`
	Name      string  `json:"name"`
	Available bool    `json:"available"`
	Caught    bool    `json:"caught"`
	SortKey   uint64  `json:"sort_key"`
	Window    *Window `json:"window,omitempty"`
	Min       uint16  `json:"min"`
	Max       uint16  `json:"max"`
}

// FISH_TIMER (host -> overlay): sorted rows for the spot being fished.
type FishTimerMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Spot            uint32    `json:"spot"`
	Bait            uint32    `json:"bait"`
	Scale           uint16    `json:"scale"`
	Rows            []FishRow `json:"rows"`
}
