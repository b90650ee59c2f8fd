package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360/symbolws/directory"
	"github.com/c360/symbolws/errors"
	"github.com/c360/symbolws/price"
	"github.com/c360/symbolws/subscription"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	overall := s.deps.Health.AggregateHealth("symbolws")
	status := http.StatusOK
	if overall.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, overall)
}

// NodeHost is the /nodehost response.
type NodeHost struct {
	WebSocket string `json:"websocket"`
	REST      string `json:"rest"`
}

func (s *Server) handleNodeHost(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.EndpointTimeout)
	defer cancel()

	endpoint, err := s.deps.Endpoint.Endpoint(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NodeHost{
		WebSocket: endpoint,
		REST:      directory.RESTFromWebSocket(endpoint),
	})
}

type subscriptionsResponse struct {
	Subscriptions []subscriptionView `json:"subscriptions"`
	Total         int                `json:"total"`
}

type subscriptionView struct {
	subscription.Subscription
	Channel string `json:"channel"`
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	subs := s.deps.Subscriptions.List()
	views := make([]subscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, subscriptionView{Subscription: sub, Channel: sub.Channel()})
	}
	s.writeJSON(w, http.StatusOK, subscriptionsResponse{Subscriptions: views, Total: len(views)})
}

func (s *Server) prices(w http.ResponseWriter) (PriceService, bool) {
	if s.deps.Prices == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "price pipeline disabled"})
		return nil, false
	}
	return s.deps.Prices, true
}

func (s *Server) pair(r *http.Request) (string, string) {
	q := r.URL.Query()
	symbol := strings.ToLower(strings.TrimSpace(q.Get("symbol")))
	if symbol == "" {
		symbol = s.cfg.DefaultSymbol
	}
	currency := strings.ToLower(strings.TrimSpace(q.Get("currency")))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	return symbol, currency
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	prices, ok := s.prices(w)
	if !ok {
		return
	}

	symbol, currency := s.pair(r)
	q := r.URL.Query()
	from, to, err := price.ParseRange(q.Get("from"), q.Get("to"), prices.Now(), prices.Location())
	if err != nil {
		s.writeError(w, err)
		return
	}

	days, err := prices.History(r.Context(), symbol, currency, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	prices, ok := s.prices(w)
	if !ok {
		return
	}

	symbol, currency := s.pair(r)
	p, err := prices.Latest(r.Context(), symbol, currency)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	prices, ok := s.prices(w)
	if !ok {
		return
	}

	n, err := prices.ImportHourly(r.Context())
	if err != nil {
		s.writeError(w, fmt.Errorf("imported %d points: %w", n, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"inserted": n})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	prices, ok := s.prices(w)
	if !ok {
		return
	}

	n, err := prices.SummarizeDaily(r.Context())
	if err != nil {
		s.writeError(w, errors.Wrap(err, "Server", "handleSummary", fmt.Sprintf("summarize (%d saved)", n)))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"days": n})
}
