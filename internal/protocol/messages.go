package protocol

// StateMsg (server -> client): one snapshot of the simulated world,
// produced once per tick. Timestamp is wall-clock seconds and strictly
// increases across ticks.
type StateMsg struct {
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Objects   []ObjectState   `json:"objects"`
	Sensors   []SensorReading `json:"sensors"`
}

type ObjectState struct {
	ID   string     `json:"id"`
	Pos  [3]float64 `json:"pos"`
	Vel  [3]float64 `json:"vel"`
	Mass float64    `json:"mass"`
}

// SensorReading is an auxiliary per-tick reading; regenerated every tick
// and never persisted.
type SensorReading struct {
	ID    string  `json:"id"`
	Kind  string  `json:"type"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ServerInfoMsg (server -> client): sent once after the upgrade so the
// viewer knows what cadence to expect.
type ServerInfoMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	TickRateHz      int     `json:"tick_rate_hz"`
	Gravity         float64 `json:"gravity"`
}

// RequestMsg (client -> server): the only inbound payload with meaning.
// A "request_data" message triggers one immediate snapshot push outside
// the regular cadence; anything else is treated as a keep-alive.
type RequestMsg struct {
	Type string `json:"type"`
}
