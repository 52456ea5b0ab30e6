package publish

// Status is the publisher's view of its connection to the remote store.
type Status int

const (
	StatusIdle Status = iota
	StatusSending
	StatusSent
	StatusNetworkError
	StatusServerError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusNetworkError:
		return "network_error"
	case StatusServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
