package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"wallet-settlement/internal/domain/ports/adapter"
	"wallet-settlement/internal/usecase"
)

type Server struct {
	settlementUC usecase.SettlementUseCase
	registry     adapter.GatewayRegistry
	apiKey       string
	auth         *AuthManager
	log          *zerolog.Logger
}

func NewServer(
	settlementUC usecase.SettlementUseCase,
	registry adapter.GatewayRegistry,
	apiKey string,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		settlementUC: settlementUC,
		registry:     registry,
		apiKey:       apiKey,
		auth:         auth,
		log:          logger,
	}
}

// Routes builds the full router: public payment endpoints, the provider
// webhook receiver, the JWT-protected admin read API, and operational
// endpoints.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/webhooks/{provider}", s.webhookHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.plansListHandler())
		r.Post("/payments/initiate", s.initiateHandler())
		r.Post("/payments/verify", s.verifyHandler())
		r.Get("/payments/{id}", s.paymentGetHandler())

		r.With(s.authMiddleware).Get("/payments", s.paymentsListHandler())

		r.Post("/admin/auth/login", s.adminLoginHandler())
		r.Post("/admin/auth/logout", s.adminLogoutHandler())
	})

	return r
}

// authMiddleware guards the admin read API with a session JWT, accepted
// either as a Bearer token or as the session cookie minted at login.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.log.Error().Msg("admin auth is not configured")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if s.apiKey == "" || req.Key != s.apiKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if s.auth == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.Mint(w); err != nil {
			s.log.Error().Err(err).Msg("failed to mint admin session")
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) adminLogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			s.auth.Clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
