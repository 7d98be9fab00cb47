package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/chat"
	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/ledger"
)

type updateAgentStatusRequest struct {
	Status entity.AgentStatus `json:"status" jsonschema:"required,enum=active,enum=inactive,enum=busy"`
}

type searchQuery struct {
	Term string `mapstructure:"q"`
}

func (s *server) routeAgents(router *mux.Router) {
	router.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		var req agent.CreateAgentRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		created, err := s.Agents.CreateAgent(r.Context(), callerOf(r), req)
		s.respond(w, r, created, err)
	}).Methods(http.MethodPost)

	router.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		agents, err := s.Agents.GetAllAgents(r.Context())
		s.respond(w, r, agents, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/agents/mine", func(w http.ResponseWriter, r *http.Request) {
		agents, err := s.Agents.GetMyAgents(r.Context(), callerOf(r))
		s.respond(w, r, agents, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/agents/search", func(w http.ResponseWriter, r *http.Request) {
		var q searchQuery
		if err := decodeQuery(r, &q); err != nil {
			s.writeError(w, r, err)
			return
		}

		agents, err := s.Agents.SearchAgents(r.Context(), q.Term)
		s.respond(w, r, agents, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/agents/categories", func(w http.ResponseWriter, r *http.Request) {
		categories, err := s.Agents.GetAgentCategories(r.Context())
		s.respond(w, r, categories, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/agents/{id}", func(w http.ResponseWriter, r *http.Request) {
		found, err := s.Agents.GetAgent(r.Context(), mux.Vars(r)["id"])
		s.respond(w, r, found, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/agents/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var req updateAgentStatusRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		id := mux.Vars(r)["id"]
		if err := s.Agents.UpdateAgentStatus(r.Context(), callerOf(r), id, req.Status); err != nil {
			s.writeError(w, r, err)
			return
		}

		updated, err := s.Agents.GetAgent(r.Context(), id)
		s.respond(w, r, updated, err)
	}).Methods(http.MethodPut)

	router.HandleFunc("/agents/{id}/earnings", func(w http.ResponseWriter, r *http.Request) {
		earnings, err := s.Analytics.GetAgentEarnings(r.Context(), callerOf(r), mux.Vars(r)["id"])
		s.respond(w, r, earnings, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/marketplace", func(w http.ResponseWriter, r *http.Request) {
		var q agent.MarketplaceQuery
		if err := decodeQuery(r, &q); err != nil {
			s.writeError(w, r, err)
			return
		}

		agents, err := s.Agents.GetMarketplaceAgents(r.Context(), q)
		s.respond(w, r, agents, err)
	}).Methods(http.MethodGet)
}

func (s *server) routeTransactions(router *mux.Router) {
	router.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		var req ledger.CreateTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		created, err := s.Ledger.CreateTransaction(r.Context(), callerOf(r), req)
		s.respond(w, r, created, err)
	}).Methods(http.MethodPost)

	router.HandleFunc("/transactions/mine", func(w http.ResponseWriter, r *http.Request) {
		transactions, err := s.Ledger.GetMyTransactions(r.Context(), callerOf(r))
		s.respond(w, r, transactions, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		found, err := s.Ledger.GetTransaction(r.Context(), mux.Vars(r)["id"])
		s.respond(w, r, found, err)
	}).Methods(http.MethodGet)
}

func (s *server) routeAnalytics(router *mux.Router) {
	router.HandleFunc("/earnings", func(w http.ResponseWriter, r *http.Request) {
		earnings, err := s.Analytics.GetMyEarnings(r.Context(), callerOf(r))
		s.respond(w, r, earnings, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/analytics", func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Analytics.GetAnalytics(r.Context(), callerOf(r))
		s.respond(w, r, report, err)
	}).Methods(http.MethodGet)

	router.HandleFunc("/network/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Analytics.GetNetworkStats(r.Context())
		s.respond(w, r, stats, err)
	}).Methods(http.MethodGet)
}

func (s *server) routeChat(router *mux.Router) {
	router.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req chat.SendMessageRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}

		msg, err := s.Chat.SendMessage(r.Context(), callerOf(r), req)
		s.respond(w, r, msg, err)
	}).Methods(http.MethodPost)

	router.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		history, err := s.Chat.GetChatHistory(r.Context(), callerOf(r))
		s.respond(w, r, history, err)
	}).Methods(http.MethodGet)
}
