package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/infra/metrics"
	"wallet-settlement/internal/usecase"
)

// Webhook bodies are small JSON documents; anything bigger is abuse.
const maxWebhookBody = 1 << 20

// paymentResponse is the wire shape of a payment. The domain model carries
// no JSON tags on purpose.
type paymentResponse struct {
	ID             string                 `json:"id"`
	UserID         string                 `json:"user_id"`
	Provider       string                 `json:"provider"`
	ProviderRef    string                 `json:"provider_ref"`
	AmountMinor    int64                  `json:"amount_minor"`
	Currency       string                 `json:"currency"`
	Status         string                 `json:"status"`
	CoinsGranted   *int64                 `json:"coins_granted,omitempty"`
	SubscriptionID *string                `json:"subscription_id,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func toPaymentResponse(p *model.Payment) *paymentResponse {
	return &paymentResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		Provider:       p.Provider,
		ProviderRef:    p.ProviderRef,
		AmountMinor:    p.AmountMinor,
		Currency:       p.Currency,
		Status:         string(p.Status),
		CoinsGranted:   p.CoinsGranted,
		SubscriptionID: p.SubscriptionID,
		Meta:           p.Meta,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type initiateRequest struct {
	UserID      string                 `json:"user_id"`
	Provider    string                 `json:"provider"`
	AmountMinor int64                  `json:"amount_minor"`
	Currency    string                 `json:"currency"`
	PlanID      string                 `json:"plan_id,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

func (s *Server) initiateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req initiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.UserID == "" || req.Provider == "" {
			http.Error(w, "user_id and provider are required", http.StatusBadRequest)
			return
		}

		res, err := s.settlementUC.Initiate(ctx, usecase.InitiateRequest{
			UserID:      req.UserID,
			Provider:    req.Provider,
			AmountMinor: req.AmountMinor,
			Currency:    req.Currency,
			PlanID:      req.PlanID,
			Meta:        req.Meta,
		})
		if err != nil {
			s.writeError(w, err, "failed to initiate payment")
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Payment      *paymentResponse `json:"payment"`
			RedirectURL  string           `json:"redirect_url,omitempty"`
			ClientSecret string           `json:"client_secret,omitempty"`
		}{
			Payment:      toPaymentResponse(res.Payment),
			RedirectURL:  res.Initiation.RedirectURL,
			ClientSecret: res.Initiation.ClientSecret,
		})
	}
}

type verifyRequest struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
}

func (s *Server) verifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()

		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			metrics.PaymentVerifyRequests.WithLabelValues("fail", "bad_json").Inc()
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Reference == "" {
			metrics.PaymentVerifyRequests.WithLabelValues("fail", "missing_reference").Inc()
			http.Error(w, "reference is required", http.StatusBadRequest)
			return
		}

		out, err := s.settlementUC.Verify(ctx, req.Provider, req.Reference)
		if err != nil {
			metrics.PaymentVerifyRequests.WithLabelValues("fail", verifyFailReason(err)).Inc()
			metrics.PaymentVerifyDuration.WithLabelValues("fail").Observe(time.Since(start).Seconds())
			s.writeError(w, err, "failed to verify payment")
			return
		}

		metrics.PaymentVerifyRequests.WithLabelValues("ok", "").Inc()
		metrics.PaymentVerifyDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		writeJSON(w, http.StatusOK, struct {
			Status  string           `json:"status"`
			Message string           `json:"message"`
			Payment *paymentResponse `json:"payment"`
		}{
			Status:  string(out.Status),
			Message: out.Message,
			Payment: toPaymentResponse(out.Payment),
		})
	}
}

func verifyFailReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, domain.ErrNotFound):
		return "unknown_reference"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "gateway_error"
	default:
		return "reconcile_error"
	}
}

// webhookHandler receives provider callbacks. Processing is fully idempotent,
// so duplicate deliveries get the same 200 as the first one and the provider
// stops retrying.
func (s *Server) webhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		provider := chi.URLParam(r, "provider")

		gw, err := s.registry.Resolve(provider)
		if err != nil {
			metrics.WebhooksReceived.WithLabelValues(provider, "bad_payload").Inc()
			http.Error(w, "Unknown provider", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			metrics.WebhooksReceived.WithLabelValues(gw.Name(), "bad_payload").Inc()
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}

		out, err := s.settlementUC.HandleWebhook(ctx, provider, body, r.Header.Get(gw.SignatureHeader()))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSignature):
				metrics.WebhooksReceived.WithLabelValues(gw.Name(), "bad_signature").Inc()
				http.Error(w, "Invalid signature", http.StatusBadRequest)
			case errors.Is(err, domain.ErrMissingReference), errors.Is(err, domain.ErrInvalidArgument):
				metrics.WebhooksReceived.WithLabelValues(gw.Name(), "bad_payload").Inc()
				http.Error(w, "Invalid payload", http.StatusBadRequest)
			case errors.Is(err, domain.ErrNotFound):
				metrics.WebhooksReceived.WithLabelValues(gw.Name(), "bad_payload").Inc()
				http.Error(w, "Unknown reference", http.StatusNotFound)
			default:
				metrics.WebhooksReceived.WithLabelValues(gw.Name(), "error").Inc()
				s.log.Error().Err(err).Str("provider", gw.Name()).Msg("webhook processing failed")
				http.Error(w, "Internal error", http.StatusInternalServerError)
			}
			return
		}

		metrics.WebhooksReceived.WithLabelValues(gw.Name(), "processed").Inc()
		writeJSON(w, http.StatusOK, struct {
			OK     bool   `json:"ok"`
			Status string `json:"status"`
		}{OK: true, Status: string(out.Status)})
	}
}

type planResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Coins      int64  `json:"coins"`
	Interval   string `json:"interval"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
}

// plansListHandler returns the purchasable plan catalog, cheapest first.
func (s *Server) plansListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := s.settlementUC.ListPlans(r.Context())
		if err != nil {
			s.writeError(w, err, "failed to list plans")
			return
		}
		data := make([]*planResponse, 0, len(plans))
		for _, p := range plans {
			data = append(data, &planResponse{
				ID:         p.ID,
				Name:       p.Name,
				Coins:      p.Coins,
				Interval:   string(p.Interval),
				PriceMinor: p.PriceMinor,
				Currency:   p.Currency,
			})
		}
		writeJSON(w, http.StatusOK, struct {
			Data []*planResponse `json:"data"`
		}{Data: data})
	}
}

func (s *Server) paymentGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "Payment ID is required", http.StatusBadRequest)
			return
		}
		p, err := s.settlementUC.GetPayment(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			s.writeError(w, err, "failed to get payment")
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(p))
	}
}

// paymentsListHandler returns a paginated payment history for one user.
// It accepts 'user_id', 'offset' and 'limit' query parameters.
func (s *Server) paymentsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		payments, err := s.settlementUC.ListPayments(ctx, userID, offset, limit)
		if err != nil {
			s.writeError(w, err, "failed to list payments")
			return
		}

		data := make([]*paymentResponse, 0, len(payments))
		for _, p := range payments {
			data = append(data, toPaymentResponse(p))
		}
		writeJSON(w, http.StatusOK, struct {
			Data   []*paymentResponse `json:"data"`
			Limit  int                `json:"limit"`
			Offset int                `json:"offset"`
		}{Data: data, Limit: limit, Offset: offset})
	}
}

// writeError maps domain sentinels to HTTP statuses. Anything unmapped is a
// 500 with a generic message; internals never leak to the caller.
func (s *Server) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedProvider),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrMissingReference):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrProviderUnavailable):
		http.Error(w, "Payment provider unavailable", http.StatusBadGateway)
	default:
		s.log.Error().Err(err).Msg(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
