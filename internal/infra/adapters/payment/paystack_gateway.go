// File: internal/infra/adapters/payment/paystack_gateway.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wallet-settlement/internal/config"
	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PaystackGateway)(nil)

// paystackStatus maps Paystack's transaction status vocabulary onto the
// shared three-state enum. Reviewed whenever Paystack adds a status; anything
// unlisted is treated as pending, never as failed.
var paystackStatus = map[string]model.PaymentStatus{
	"success":   model.PaymentStatusSuccess,
	"failed":    model.PaymentStatusFailed,
	"abandoned": model.PaymentStatusFailed,
	"reversed":  model.PaymentStatusFailed,
	"ongoing":   model.PaymentStatusPending,
	"pending":   model.PaymentStatusPending,
	"queued":    model.PaymentStatusPending,
	"paused":    model.PaymentStatusPending,
}

// PaystackGateway implements adapter.PaymentGateway against the Paystack
// REST API (card and bank channels).
type PaystackGateway struct {
	secretKey string
	callback  string
	currency  string
	minAmount int64
	baseURL   string
	client    *http.Client
}

func NewPaystackGateway(cfg config.PaystackConfig) (*PaystackGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("paystack: secret_key is required: %w", domain.ErrConfiguration)
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "NGN"
	}
	minAmount := cfg.MinAmountMinor
	if minAmount <= 0 {
		minAmount = 100 // NGN 1.00
	}
	return &PaystackGateway{
		secretKey: cfg.SecretKey,
		callback:  cfg.CallbackURL,
		currency:  currency,
		minAmount: minAmount,
		baseURL:   "https://api.paystack.co",
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *PaystackGateway) Name() string { return "paystack" }

// SetBaseURL overrides the API endpoint (tests).
func (g *PaystackGateway) SetBaseURL(u string) { g.baseURL = u }

func (g *PaystackGateway) InitiatePayment(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error) {
	if req.AmountMinor < g.minAmount {
		return nil, fmt.Errorf("paystack: amount %d below minimum %d: %w", req.AmountMinor, g.minAmount, domain.ErrInvalidAmount)
	}
	email, _ := req.Meta["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("paystack: customer email required in metadata: %w", domain.ErrInvalidArgument)
	}
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	reference := uuid.NewString()
	payload := map[string]any{
		"email":     email,
		"amount":    req.AmountMinor, // Paystack expects minor units
		"currency":  currency,
		"reference": reference,
		"metadata":  map[string]any{"user_id": req.UserID},
	}
	if g.callback != "" {
		payload["callback_url"] = g.callback
	}
	b, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transaction/initialize", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	var out struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("paystack initialize decode: %v: %w", err, domain.ErrProviderUnavailable)
	}
	if !out.Status || out.Data.Reference == "" {
		return nil, fmt.Errorf("paystack initialize rejected: %s: %w", out.Message, domain.ErrProviderUnavailable)
	}
	return &adapter.InitiationResult{
		Provider:     g.Name(),
		ProviderRef:  out.Data.Reference,
		RedirectURL:  out.Data.AuthorizationURL,
		ClientSecret: out.Data.AccessCode,
		Meta:         map[string]interface{}{"access_code": out.Data.AccessCode, "currency": currency},
	}, nil
}

func (g *PaystackGateway) VerifyPayment(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/transaction/verify/"+providerRef, nil)
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	var out struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status          string `json:"status"`
			Reference       string `json:"reference"`
			Amount          int64  `json:"amount"`
			Currency        string `json:"currency"`
			GatewayResponse string `json:"gateway_response"`
			Channel         string `json:"channel"`
			PaidAt          string `json:"paid_at"`
			Authorization   struct {
				Brand string `json:"brand"`
				Last4 string `json:"last4"`
				Bank  string `json:"bank"`
			} `json:"authorization"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("paystack verify decode: %v: %w", err, domain.ErrProviderUnavailable)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack verify rejected: %s: %w", out.Message, domain.ErrProviderUnavailable)
	}

	status, ok := paystackStatus[out.Data.Status]
	if !ok {
		status = model.PaymentStatusPending
	}
	meta := map[string]interface{}{
		"provider_status":  out.Data.Status,
		"gateway_response": out.Data.GatewayResponse,
		"channel":          out.Data.Channel,
		"amount":           out.Data.Amount,
		"currency":         out.Data.Currency,
	}
	if out.Data.PaidAt != "" {
		meta["paid_at"] = out.Data.PaidAt
	}
	if pm := paystackPaymentMethod(out.Data.Channel, out.Data.Authorization.Brand, out.Data.Authorization.Last4); pm != "" {
		meta["payment_method"] = pm
	}
	return &adapter.VerificationResult{Status: status, Meta: meta}, nil
}

// paystackPaymentMethod builds the human-readable receipt summary.
func paystackPaymentMethod(channel, brand, last4 string) string {
	if brand != "" && last4 != "" {
		return fmt.Sprintf("%s ****%s", brand, last4)
	}
	return channel
}

func (g *PaystackGateway) SignatureHeader() string { return "x-paystack-signature" }

// VerifyWebhookSignature checks the HMAC-SHA512 hex digest Paystack sends
// with every event.
func (g *PaystackGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (g *PaystackGateway) ParseWebhook(body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Status          string `json:"status"`
			Reference       string `json:"reference"`
			Amount          int64  `json:"amount"`
			GatewayResponse string `json:"gateway_response"`
			Channel         string `json:"channel"`
			Authorization   struct {
				Brand string `json:"brand"`
				Last4 string `json:"last4"`
			} `json:"authorization"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("paystack webhook: %v: %w", err, domain.ErrInvalidArgument)
	}
	if payload.Data.Reference == "" {
		return nil, fmt.Errorf("paystack webhook: %w", domain.ErrMissingReference)
	}

	status := model.PaymentStatusPending
	switch {
	case payload.Event == "charge.success":
		status = model.PaymentStatusSuccess
	default:
		if s, ok := paystackStatus[payload.Data.Status]; ok {
			status = s
		}
	}
	meta := map[string]interface{}{
		"event":            payload.Event,
		"provider_status":  payload.Data.Status,
		"gateway_response": payload.Data.GatewayResponse,
		"channel":          payload.Data.Channel,
	}
	if pm := paystackPaymentMethod(payload.Data.Channel, payload.Data.Authorization.Brand, payload.Data.Authorization.Last4); pm != "" {
		meta["payment_method"] = pm
	}
	return &adapter.WebhookEvent{ProviderRef: payload.Data.Reference, Status: status, Meta: meta}, nil
}
