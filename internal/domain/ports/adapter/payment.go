package adapter

import (
	"context"

	"wallet-settlement/internal/domain/model"
)

// InitiationRequest carries everything a driver needs to start a payment.
type InitiationRequest struct {
	UserID      string
	AmountMinor int64
	Currency    string
	Meta        map[string]interface{} // request context (email, plan id, ...)
}

// InitiationResult is the provider's answer to a payment request. Callers
// need RedirectURL or ClientSecret to complete checkout on their side.
type InitiationResult struct {
	Provider     string
	ProviderRef  string // opaque external reference, unique per provider
	RedirectURL  string
	ClientSecret string
	Meta         map[string]interface{} // provider response snapshot
}

// VerificationResult is the provider-reported state of a payment, normalized
// to the three-value status enum. Provider-specific vocabulary never leaves
// the driver.
type VerificationResult struct {
	Status model.PaymentStatus // pending | success | failed only
	Meta   map[string]interface{}
}

// WebhookEvent is a parsed inbound callback.
type WebhookEvent struct {
	ProviderRef string
	Status      model.PaymentStatus // pending | success | failed only
	Meta        map[string]interface{}
}

// PaymentGateway is the hex port for payment providers. Drivers are
// stateless: they hold credentials only and never touch the ledger.
type PaymentGateway interface {
	Name() string

	// InitiatePayment starts a payment with the provider. No Payment row
	// exists yet when this fails, so there is nothing to clean up.
	InitiatePayment(ctx context.Context, req InitiationRequest) (*InitiationResult, error)

	// VerifyPayment asks the provider for the current status of a previously
	// started payment. Read-only against the provider; safe to call
	// repeatedly. Mutation is the orchestrator's job.
	VerifyPayment(ctx context.Context, providerRef string) (*VerificationResult, error)

	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// VerifyWebhookSignature validates an inbound callback's authenticity.
	VerifyWebhookSignature(body []byte, signature string) bool
	// ParseWebhook extracts the provider reference and normalized status
	// from a raw callback payload.
	ParseWebhook(body []byte) (*WebhookEvent, error)
}
