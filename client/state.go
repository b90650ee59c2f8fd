package client

// Phase is the connection state machine position.
type Phase int

// Connection phases. Closed is final.
const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingHandshake
	PhaseOpen
	PhaseClosing
	PhaseReconnecting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingHandshake:
		return "awaiting_handshake"
	case PhaseOpen:
		return "open"
	case PhaseClosing:
		return "closing"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is a snapshot of the connection. Session is set only while Open;
// Endpoint is set from Connecting until the socket of that generation ends.
type State struct {
	Phase      Phase  `json:"phase"`
	Endpoint   string `json:"endpoint,omitempty"`
	Session    string `json:"session,omitempty"`
	Generation uint64 `json:"generation"`
}

// MarshalText renders the phase name in JSON and logs.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// endpointFuture resolves once per connection generation.
type endpointFuture struct {
	ready chan struct{}
	url   string
}

func newEndpointFuture() *endpointFuture {
	return &endpointFuture{ready: make(chan struct{})}
}

func (f *endpointFuture) resolve(url string) {
	f.url = url
	close(f.ready)
}
