package directory

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/c360/symbolws/errors"
)

// StaticDirectory serves a fixed list of websocket URLs in round-robin order.
// It suits tests and deployments pinned to known nodes.
type StaticDirectory struct {
	urls []string
	next atomic.Uint64
}

// Static creates a StaticDirectory.
func Static(urls ...string) *StaticDirectory {
	return &StaticDirectory{urls: append([]string(nil), urls...)}
}

// Refresh is a no-op.
func (s *StaticDirectory) Refresh(context.Context) error {
	return nil
}

// PickOne returns the next URL. wss:// URLs are the only candidates when TLS is required.
func (s *StaticDirectory) PickOne(requireTLS bool) (string, error) {
	candidates := s.candidates(requireTLS)
	if len(candidates) == 0 {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: no static endpoint (tls=%t)", errors.ErrEmptyCache, requireTLS),
			"StaticDirectory", "PickOne", "pick node")
	}
	i := s.next.Add(1) - 1
	return candidates[i%uint64(len(candidates))], nil
}

// PickRESTGateway derives the REST gateway from the next websocket URL.
func (s *StaticDirectory) PickRESTGateway(requireTLS bool) (string, error) {
	ws, err := s.PickOne(requireTLS)
	if err != nil {
		return "", err
	}
	return RESTFromWebSocket(ws), nil
}

func (s *StaticDirectory) candidates(requireTLS bool) []string {
	if !requireTLS {
		return s.urls
	}
	var out []string
	for _, u := range s.urls {
		if strings.HasPrefix(u, "wss://") {
			out = append(out, u)
		}
	}
	return out
}

// RESTFromWebSocket maps ws(s)://host:port/ws to http(s)://host:port.
func RESTFromWebSocket(wsURL string) string {
	u := strings.TrimSuffix(wsURL, "/ws")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}
