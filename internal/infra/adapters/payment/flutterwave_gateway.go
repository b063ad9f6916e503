// File: internal/infra/adapters/payment/flutterwave_gateway.go
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"wallet-settlement/internal/config"
	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*FlutterwaveGateway)(nil)

// flutterwaveStatus maps Flutterwave's free-text transaction statuses onto
// the shared three-state enum. Unlisted statuses stay pending.
var flutterwaveStatus = map[string]model.PaymentStatus{
	"successful": model.PaymentStatusSuccess,
	"completed":  model.PaymentStatusSuccess,
	"failed":     model.PaymentStatusFailed,
	"cancelled":  model.PaymentStatusFailed,
	"pending":    model.PaymentStatusPending,
}

// FlutterwaveGateway implements adapter.PaymentGateway against the
// Flutterwave v3 API (card and mobile-money channels).
type FlutterwaveGateway struct {
	secretKey string
	verifHash string
	redirect  string
	currency  string
	minAmount int64
	baseURL   string
	client    *http.Client
}

func NewFlutterwaveGateway(cfg config.FlutterwaveConfig) (*FlutterwaveGateway, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("flutterwave: secret_key is required: %w", domain.ErrConfiguration)
	}
	// Webhook authenticity is mandatory: a missing verif-hash would leave the
	// webhook endpoint unauthenticated, so it is a configuration error.
	if cfg.VerifHash == "" {
		return nil, fmt.Errorf("flutterwave: verif_hash is required: %w", domain.ErrConfiguration)
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "KES"
	}
	minAmount := cfg.MinAmountMinor
	if minAmount <= 0 {
		minAmount = 100
	}
	return &FlutterwaveGateway{
		secretKey: cfg.SecretKey,
		verifHash: cfg.VerifHash,
		redirect:  cfg.RedirectURL,
		currency:  currency,
		minAmount: minAmount,
		baseURL:   "https://api.flutterwave.com/v3",
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *FlutterwaveGateway) Name() string { return "flutterwave" }

// SetBaseURL overrides the API endpoint (tests).
func (g *FlutterwaveGateway) SetBaseURL(u string) { g.baseURL = u }

func (g *FlutterwaveGateway) InitiatePayment(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error) {
	if req.AmountMinor < g.minAmount {
		return nil, fmt.Errorf("flutterwave: amount %d below minimum %d: %w", req.AmountMinor, g.minAmount, domain.ErrInvalidAmount)
	}
	email, _ := req.Meta["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("flutterwave: customer email required in metadata: %w", domain.ErrInvalidArgument)
	}
	currency := req.Currency
	if currency == "" {
		currency = g.currency
	}

	txRef := uuid.NewString()
	payload := map[string]any{
		"tx_ref":       txRef,
		"amount":       fmt.Sprintf("%d.%02d", req.AmountMinor/100, req.AmountMinor%100), // major units
		"currency":     currency,
		"redirect_url": g.redirect,
		"customer":     map[string]any{"email": email},
		"meta":         map[string]any{"user_id": req.UserID},
	}
	b, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/payments", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flutterwave payments: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Link string `json:"link"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("flutterwave payments decode: %v: %w", err, domain.ErrProviderUnavailable)
	}
	if out.Status != "success" || out.Data.Link == "" {
		return nil, fmt.Errorf("flutterwave payments rejected: %s: %w", out.Message, domain.ErrProviderUnavailable)
	}
	return &adapter.InitiationResult{
		Provider:    g.Name(),
		ProviderRef: txRef,
		RedirectURL: out.Data.Link,
		Meta:        map[string]interface{}{"currency": currency},
	}, nil
}

func (g *FlutterwaveGateway) VerifyPayment(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
	u := g.baseURL + "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(providerRef)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flutterwave verify: %v: %w", err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status            string  `json:"status"`
			TxRef             string  `json:"tx_ref"`
			Amount            float64 `json:"amount"`
			Currency          string  `json:"currency"`
			PaymentType       string  `json:"payment_type"`
			ProcessorResponse string  `json:"processor_response"`
			Narration         string  `json:"narration"`
			Card              struct {
				Type   string `json:"type"`
				Last4  string `json:"last_4digits"`
				Issuer string `json:"issuer"`
			} `json:"card"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("flutterwave verify decode: %v: %w", err, domain.ErrProviderUnavailable)
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("flutterwave verify rejected: %s: %w", out.Message, domain.ErrProviderUnavailable)
	}

	status, ok := flutterwaveStatus[out.Data.Status]
	if !ok {
		status = model.PaymentStatusPending
	}
	meta := map[string]interface{}{
		"provider_status":    out.Data.Status,
		"payment_type":       out.Data.PaymentType,
		"processor_response": out.Data.ProcessorResponse,
		"amount":             out.Data.Amount,
		"currency":           out.Data.Currency,
	}
	if pm := flutterwavePaymentMethod(out.Data.PaymentType, out.Data.Card.Type, out.Data.Card.Last4); pm != "" {
		meta["payment_method"] = pm
	}
	return &adapter.VerificationResult{Status: status, Meta: meta}, nil
}

// flutterwavePaymentMethod summarizes card brand/last4 or the mobile-money
// network for receipts.
func flutterwavePaymentMethod(paymentType, cardType, last4 string) string {
	if cardType != "" && last4 != "" {
		return fmt.Sprintf("%s ****%s", cardType, last4)
	}
	return paymentType // e.g. "mpesa", "mobilemoneygh"
}

func (g *FlutterwaveGateway) SignatureHeader() string { return "verif-hash" }

// VerifyWebhookSignature compares the verif-hash header against the
// configured secret hash in constant time.
func (g *FlutterwaveGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(g.verifHash))
}

func (g *FlutterwaveGateway) ParseWebhook(body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Status      string `json:"status"`
			TxRef       string `json:"tx_ref"`
			PaymentType string `json:"payment_type"`
		} `json:"data"`
		// Legacy webhook shape carries txRef at the top level.
		TxRef  string `json:"txRef"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("flutterwave webhook: %v: %w", err, domain.ErrInvalidArgument)
	}
	ref := payload.Data.TxRef
	if ref == "" {
		ref = payload.TxRef
	}
	if ref == "" {
		return nil, fmt.Errorf("flutterwave webhook: %w", domain.ErrMissingReference)
	}
	rawStatus := payload.Data.Status
	if rawStatus == "" {
		rawStatus = payload.Status
	}
	status, ok := flutterwaveStatus[rawStatus]
	if !ok {
		status = model.PaymentStatusPending
	}
	return &adapter.WebhookEvent{
		ProviderRef: ref,
		Status:      status,
		Meta: map[string]interface{}{
			"event":           payload.Event,
			"provider_status": rawStatus,
			"payment_type":    payload.Data.PaymentType,
		},
	}, nil
}
