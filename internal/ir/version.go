package ir

// Version constants for the wire format and server.
const (
	// WireVersion is the event wire format version.
	WireVersion = "1"

	// ServerVersion is the sigsync server version.
	ServerVersion = "0.1.0"
)
