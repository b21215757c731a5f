package protocol

// Status represents the derived health of the agent/front-end link.
type Status string

// Connection status constants.
const (
	StatusDisconnected Status = "DISCONNECTED" // No live peer observed.
	StatusConnecting   Status = "CONNECTING"   // First check in flight.
	StatusConnected    Status = "CONNECTED"    // Freshness marker is recent.
	StatusReconnecting Status = "RECONNECTING" // Connection lost, probing again.
	StatusError        Status = "ERROR"        // Structural fault (I/O failure).
)

// Valid reports whether s is one of the five known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected,
		StatusReconnecting, StatusError:
		return true
	default:
		return false
	}
}

// Healthy reports whether s indicates a usable link.
func (s Status) Healthy() bool {
	return s == StatusConnected
}
