package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/studiopos/api/internal/domain"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeProductAPI interface {
	Get(id string, params *stripe.ProductParams) (*stripe.Product, error)
	New(params *stripe.ProductParams) (*stripe.Product, error)
}

type stripePriceAPI interface {
	ListByLookupKey(params *stripe.PriceListParams) ([]*stripe.Price, error)
	New(params *stripe.PriceParams) (*stripe.Price, error)
}

type stripeCustomerAPI interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripeSubscriptionAPI interface {
	New(params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClients struct {
	products      stripeProductAPI
	prices        stripePriceAPI
	customers     stripeCustomerAPI
	subscriptions stripeSubscriptionAPI
}

// priceListAdapter drains the SDK iterator so the API surface stays fakeable.
type priceListAdapter struct {
	api *client.API
}

func (a priceListAdapter) ListByLookupKey(params *stripe.PriceListParams) ([]*stripe.Price, error) {
	iter := a.api.Prices.List(params)
	var prices []*stripe.Price
	for iter.Next() {
		prices = append(prices, iter.Price())
	}
	return prices, iter.Err()
}

func (a priceListAdapter) New(params *stripe.PriceParams) (*stripe.Price, error) {
	return a.api.Prices.New(params)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeProvider implements RecurringBillingProvider against the Stripe API.
// Product refs are deterministic so repeated provisioning converges on the
// same processor objects; prices are resolved by lookup key.
type StripeProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe RecurringBillingProvider.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			products:      sc.Products,
			prices:        priceListAdapter{api: sc},
			customers:     sc.Customers,
			subscriptions: sc.Subscriptions,
		}
	}

	if clients.products == nil || clients.prices == nil || clients.customers == nil || clients.subscriptions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    clients,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// EnsureProduct fetches the processor product mirroring the catalog product,
// creating it on first use. The processor id is derived from the org and
// product ids, which is what makes the call idempotent.
func (p *StripeProvider) EnsureProduct(ctx context.Context, req EnsureProductRequest) (BillingProduct, error) {
	if p == nil {
		return BillingProduct{}, errors.New("stripe: provider is nil")
	}
	ref := stripeProductRef(req.OrgID, req.ProductID)

	getParams := &stripe.ProductParams{}
	getParams.Context = ctx
	product, err := p.api.products.Get(ref, getParams)
	if err == nil && product != nil {
		return BillingProduct{Ref: product.ID}, nil
	}
	if err != nil && !isStripeNotFound(err) {
		return BillingProduct{}, fmt.Errorf("stripe: get product: %w", err)
	}

	newParams := &stripe.ProductParams{
		ID:   stripe.String(ref),
		Name: stripe.String(req.Name),
		Metadata: map[string]string{
			"orgId":     req.OrgID,
			"productId": req.ProductID,
		},
	}
	newParams.Context = ctx
	created, err := p.api.products.New(newParams)
	if err != nil {
		return BillingProduct{}, fmt.Errorf("stripe: create product: %w", err)
	}
	p.logger(ctx, "payments.stripe.product.created", map[string]any{"product": created.ID, "orgId": req.OrgID})
	return BillingProduct{Ref: created.ID, Created: true}, nil
}

// EnsurePrice resolves the recurring price by lookup key, creating it on
// first use.
func (p *StripeProvider) EnsurePrice(ctx context.Context, req EnsurePriceRequest) (BillingPrice, error) {
	if p == nil {
		return BillingPrice{}, errors.New("stripe: provider is nil")
	}
	lookupKey := stripePriceLookupKey(req.OrgID, req.PriceID)

	listParams := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	}
	listParams.Context = ctx
	existing, err := p.api.prices.ListByLookupKey(listParams)
	if err != nil {
		return BillingPrice{}, fmt.Errorf("stripe: list prices: %w", err)
	}
	if len(existing) > 0 {
		return BillingPrice{Ref: existing[0].ID}, nil
	}

	interval, intervalCount, err := stripeInterval(req.Unit)
	if err != nil {
		return BillingPrice{}, err
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	newParams := &stripe.PriceParams{
		Product:    stripe.String(req.ProductRef),
		UnitAmount: stripe.Int64(req.Amount),
		Currency:   stripe.String(currency),
		LookupKey:  stripe.String(lookupKey),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(intervalCount),
		},
		Metadata: map[string]string{
			"orgId":   req.OrgID,
			"priceId": req.PriceID,
		},
	}
	newParams.Context = ctx
	created, err := p.api.prices.New(newParams)
	if err != nil {
		return BillingPrice{}, fmt.Errorf("stripe: create price: %w", err)
	}
	p.logger(ctx, "payments.stripe.price.created", map[string]any{"price": created.ID, "orgId": req.OrgID})
	return BillingPrice{Ref: created.ID, Created: true}, nil
}

// CreateCustomer provisions a processor customer and returns its reference.
func (p *StripeProvider) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (string, error) {
	if p == nil {
		return "", errors.New("stripe: provider is nil")
	}
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"orgId":      req.OrgID,
			"customerId": req.CustomerID,
		},
	}
	params.Context = ctx
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	customer, err := p.api.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	p.logger(ctx, "payments.stripe.customer.created", map[string]any{"customer": customer.ID, "orgId": req.OrgID})
	return customer.ID, nil
}

// CreateSubscription starts the recurring subscription.
func (p *StripeProvider) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error) {
	if p == nil {
		return Subscription{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceRef)},
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	sub, err := p.api.subscriptions.New(params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: create subscription: %w", err)
	}

	p.logger(ctx, "payments.stripe.subscription.created", map[string]any{
		"subscription": sub.ID,
		"status":       sub.Status,
	})

	raw := map[string]any{}
	if data, err := json.Marshal(sub); err == nil {
		_ = json.Unmarshal(data, &raw)
	}

	return Subscription{Ref: sub.ID, Status: string(sub.Status), Raw: raw}, nil
}

func stripeProductRef(orgID, productID string) string {
	return fmt.Sprintf("pos_%s_%s", strings.TrimSpace(orgID), strings.TrimSpace(productID))
}

func stripePriceLookupKey(orgID, priceID string) string {
	return fmt.Sprintf("pos_%s_price_%s", strings.TrimSpace(orgID), strings.TrimSpace(priceID))
}

func stripeInterval(unit domain.BillingUnit) (string, int64, error) {
	switch unit {
	case domain.BillingWeekly:
		return "week", 1, nil
	case domain.BillingFortnightly:
		return "week", 2, nil
	case domain.BillingMonthly:
		return "month", 1, nil
	case domain.BillingYearly:
		return "year", 1, nil
	default:
		return "", 0, fmt.Errorf("stripe: unsupported billing unit %q", unit)
	}
}

func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}
