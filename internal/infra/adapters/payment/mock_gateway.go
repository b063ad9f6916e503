// File: internal/infra/adapters/payment/mock_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MockGateway)(nil)

// MockGateway is a simple in-memory gateway for tests and dev mode. Every
// initiated payment starts pending; tests flip the outcome with SetStatus.
type MockGateway struct {
	mu       sync.Mutex
	seq      int64
	statuses map[string]model.PaymentStatus
	secret   string

	InitiateErr error // forced initiation failure
	VerifyErr   error // forced verification failure
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		statuses: make(map[string]model.PaymentStatus),
		secret:   "mock-secret",
	}
}

func (g *MockGateway) Name() string { return "mock" }

// SetStatus sets the provider-side status a later verify will report.
func (g *MockGateway) SetStatus(ref string, s model.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[ref] = s
}

func (g *MockGateway) InitiatePayment(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error) {
	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("mock: non-positive amount: %w", domain.ErrInvalidAmount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	ref := fmt.Sprintf("mock-%d", g.seq)
	g.statuses[ref] = model.PaymentStatusPending
	return &adapter.InitiationResult{
		Provider:    g.Name(),
		ProviderRef: ref,
		RedirectURL: "https://example.test/pay/" + ref,
		Meta:        map[string]interface{}{},
	}, nil
}

func (g *MockGateway) VerifyPayment(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
	if g.VerifyErr != nil {
		return nil, g.VerifyErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.statuses[providerRef]
	if !ok {
		return nil, fmt.Errorf("mock: unknown reference %q: %w", providerRef, domain.ErrNotFound)
	}
	return &adapter.VerificationResult{
		Status: s,
		Meta:   map[string]interface{}{"payment_method": "mock card ****0000"},
	}, nil
}

func (g *MockGateway) SignatureHeader() string { return "x-mock-signature" }

func (g *MockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == g.secret
}

func (g *MockGateway) ParseWebhook(body []byte) (*adapter.WebhookEvent, error) {
	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("mock webhook: %v: %w", err, domain.ErrInvalidArgument)
	}
	if payload.Reference == "" {
		return nil, fmt.Errorf("mock webhook: %w", domain.ErrMissingReference)
	}
	status := model.PaymentStatus(payload.Status)
	switch status {
	case model.PaymentStatusSuccess, model.PaymentStatusFailed, model.PaymentStatusPending:
	default:
		status = model.PaymentStatusPending
	}
	return &adapter.WebhookEvent{ProviderRef: payload.Reference, Status: status, Meta: map[string]interface{}{}}, nil
}
