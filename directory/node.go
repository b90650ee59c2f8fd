package directory

// RoleAPI is the role bit of nodes that expose the REST gateway and websocket.
const RoleAPI = 2

// WebSocketStatus describes a node's websocket endpoint.
type WebSocketStatus struct {
	IsAvailable bool   `json:"isAvailable"`
	WSS         bool   `json:"wss"`
	URL         string `json:"url"`
}

// APIStatus is the API health reported by the statistics service.
type APIStatus struct {
	IsAvailable     bool            `json:"isAvailable"`
	IsHTTPSEnabled  bool            `json:"isHttpsEnabled"`
	RESTGatewayURL  string          `json:"restGatewayUrl"`
	WebSocket       WebSocketStatus `json:"webSocket"`
	ChainHeight     uint64          `json:"chainHeight,omitempty"`
	FinalizedHeight uint64          `json:"finalizationHeight,omitempty"`
}

// NodeInfo is one entry of the statistics service /nodes listing.
type NodeInfo struct {
	PublicKey     string     `json:"publicKey"`
	Host          string     `json:"host"`
	FriendlyName  string     `json:"friendlyName"`
	Roles         int        `json:"roles"`
	NetworkHeight uint64     `json:"networkHeight,omitempty"`
	APIStatus     *APIStatus `json:"apiStatus,omitempty"`
}

// IsAPI reports whether the node has the API role.
func (n NodeInfo) IsAPI() bool {
	return n.Roles&RoleAPI == RoleAPI
}

// Candidate reports whether the node may be picked. TLS-only picks also
// require HTTPS on the node.
func (n NodeInfo) Candidate(requireTLS bool) bool {
	if n.APIStatus == nil || !n.APIStatus.IsAvailable {
		return false
	}
	if requireTLS && !n.APIStatus.IsHTTPSEnabled {
		return false
	}
	return true
}
