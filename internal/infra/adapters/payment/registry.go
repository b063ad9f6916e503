// File: internal/infra/adapters/payment/registry.go
package payment

import (
	"fmt"
	"sort"
	"strings"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/ports/adapter"
)

// Registry maps a provider identifier to its driver. It is built once at
// process start from validated configuration and never mutated afterwards;
// pass it by reference into the orchestrator.
type Registry struct {
	drivers map[string]adapter.PaymentGateway
	names   []string
}

func NewRegistry(gateways ...adapter.PaymentGateway) *Registry {
	r := &Registry{drivers: make(map[string]adapter.PaymentGateway, len(gateways))}
	for _, g := range gateways {
		name := strings.ToLower(g.Name())
		r.drivers[name] = g
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Resolve returns the driver for a provider identifier (case-insensitive).
func (r *Registry) Resolve(provider string) (adapter.PaymentGateway, error) {
	g, ok := r.drivers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, fmt.Errorf("provider %q (available: %s): %w",
			provider, strings.Join(r.names, ", "), domain.ErrUnsupportedProvider)
	}
	return g, nil
}

// Providers lists the configured provider identifiers, sorted.
func (r *Registry) Providers() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
