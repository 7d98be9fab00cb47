package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/analytics"
	"github.com/habiliai/agentmarket/chat"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CallerHeader carries the authenticated user id. An absent or empty
// header means the request is anonymous.
const CallerHeader = "X-User-Id"

type Services struct {
	Agents    agent.Manager
	Ledger    ledger.Service
	Analytics analytics.Service
	Chat      chat.Service
}

type server struct {
	Services
	logger *slog.Logger
}

func NewHandler(services Services, logger *slog.Logger) http.Handler {
	s := &server{
		Services: services,
		logger:   logger,
	}

	router := mux.NewRouter()
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/api/schema/{name}", s.schema).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	s.routeAgents(api)
	s.routeTransactions(api)
	s.routeAnalytics(api)
	s.routeChat(api)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errNoRoute)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", CallerHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		router.ServeHTTP(w, r.WithContext(ctx))
	})

	return cors(recovery(handler))
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.logger.Warn("failed to write health response", "err", err)
	}
}

func callerOf(r *http.Request) string {
	return r.Header.Get(CallerHeader)
}
