package adapter

// GatewayRegistry resolves a provider identifier to its driver. Implemented
// by the infra registry, which is constructed once at startup and immutable
// afterwards.
type GatewayRegistry interface {
	Resolve(provider string) (PaymentGateway, error)
	Providers() []string
}
