package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/studiopos/api/internal/domain"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// EnsureProductRequest identifies a catalog product to mirror on the processor.
type EnsureProductRequest struct {
	OrgID     string
	ProductID string
	Name      string
}

// BillingProduct is the processor-side product reference.
type BillingProduct struct {
	Ref     string
	Created bool
}

// EnsurePriceRequest identifies a recurring price to mirror on the processor.
type EnsurePriceRequest struct {
	ProductRef string
	OrgID      string
	PriceID    string
	Amount     int64
	Currency   string
	Unit       domain.BillingUnit
}

// BillingPrice is the processor-side price reference.
type BillingPrice struct {
	Ref     string
	Created bool
}

// CreateCustomerRequest provisions a processor customer for recurring billing.
type CreateCustomerRequest struct {
	OrgID      string
	CustomerID string
	Email      string
	Name       string
}

// CreateSubscriptionRequest starts a recurring subscription on the processor.
type CreateSubscriptionRequest struct {
	CustomerRef    string
	PriceRef       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Subscription is the processor-side subscription reference.
type Subscription struct {
	Ref    string
	Status string
	Raw    map[string]any
}

// RecurringBillingProvider defines the contract processor adapters implement
// for membership billing. EnsureProduct and EnsurePrice are idempotent:
// repeated calls with the same identifiers return the existing processor
// objects.
type RecurringBillingProvider interface {
	EnsureProduct(ctx context.Context, req EnsureProductRequest) (BillingProduct, error)
	EnsurePrice(ctx context.Context, req EnsurePriceRequest) (BillingPrice, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (string, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
}

// Manager coordinates provider selection over the registered adapters.
type Manager struct {
	providers       map[string]RecurringBillingProvider
	defaultProvider string
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]RecurringBillingProvider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]RecurringBillingProvider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	return m, nil
}

// Resolve returns the provider registered under the given name, falling back
// to the default when the name is empty.
func (m *Manager) Resolve(preferred string) (RecurringBillingProvider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return p, nil
		}
		return nil, ErrUnsupportedProvider
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return p, nil
	}
	if len(m.providers) == 1 {
		for _, p := range m.providers {
			return p, nil
		}
	}
	return nil, ErrUnsupportedProvider
}
