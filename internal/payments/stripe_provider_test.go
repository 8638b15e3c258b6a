package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/studiopos/api/internal/domain"
)

type fakeProductAPI struct {
	existing map[string]*stripe.Product
	created  []*stripe.ProductParams
}

func (f *fakeProductAPI) Get(id string, _ *stripe.ProductParams) (*stripe.Product, error) {
	if product, ok := f.existing[id]; ok {
		return product, nil
	}
	return nil, &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
}

func (f *fakeProductAPI) New(params *stripe.ProductParams) (*stripe.Product, error) {
	f.created = append(f.created, params)
	return &stripe.Product{ID: stripe.StringValue(params.ID)}, nil
}

type fakePriceAPI struct {
	existing []*stripe.Price
	created  []*stripe.PriceParams
}

func (f *fakePriceAPI) ListByLookupKey(_ *stripe.PriceListParams) ([]*stripe.Price, error) {
	return f.existing, nil
}

func (f *fakePriceAPI) New(params *stripe.PriceParams) (*stripe.Price, error) {
	f.created = append(f.created, params)
	return &stripe.Price{ID: "price_new"}, nil
}

type fakeCustomerAPI struct {
	created []*stripe.CustomerParams
}

func (f *fakeCustomerAPI) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.created = append(f.created, params)
	return &stripe.Customer{ID: "cus_new"}, nil
}

type fakeSubscriptionAPI struct {
	created []*stripe.SubscriptionParams
	err     error
}

func (f *fakeSubscriptionAPI) New(params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	return &stripe.Subscription{ID: "sub_new", Status: stripe.SubscriptionStatusActive}, nil
}

func newFakeProvider(t *testing.T, clients *stripeClients) *StripeProvider {
	t.Helper()
	if clients.products == nil {
		clients.products = &fakeProductAPI{}
	}
	if clients.prices == nil {
		clients.prices = &fakePriceAPI{}
	}
	if clients.customers == nil {
		clients.customers = &fakeCustomerAPI{}
	}
	if clients.subscriptions == nil {
		clients.subscriptions = &fakeSubscriptionAPI{}
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Clients: clients})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestStripeProviderEnsureProductCreatesWhenMissing(t *testing.T) {
	products := &fakeProductAPI{}
	provider := newFakeProvider(t, &stripeClients{products: products})

	result, err := provider.EnsureProduct(context.Background(), EnsureProductRequest{
		OrgID:     "org-1",
		ProductID: "p1",
		Name:      "Monthly membership",
	})
	if err != nil {
		t.Fatalf("EnsureProduct: %v", err)
	}

	if !result.Created {
		t.Fatalf("expected Created for a fresh product")
	}
	if result.Ref != "pos_org-1_p1" {
		t.Fatalf("unexpected product ref %q", result.Ref)
	}
	if len(products.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(products.created))
	}
	if got := stripe.StringValue(products.created[0].Name); got != "Monthly membership" {
		t.Fatalf("unexpected product name %q", got)
	}
}

func TestStripeProviderEnsureProductReusesExisting(t *testing.T) {
	products := &fakeProductAPI{existing: map[string]*stripe.Product{
		"pos_org-1_p1": {ID: "pos_org-1_p1"},
	}}
	provider := newFakeProvider(t, &stripeClients{products: products})

	result, err := provider.EnsureProduct(context.Background(), EnsureProductRequest{OrgID: "org-1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("EnsureProduct: %v", err)
	}
	if result.Created {
		t.Fatalf("expected existing product to be reused")
	}
	if len(products.created) != 0 {
		t.Fatalf("expected no create call, got %d", len(products.created))
	}
}

func TestStripeProviderEnsurePriceCreatesWithLookupKey(t *testing.T) {
	prices := &fakePriceAPI{}
	provider := newFakeProvider(t, &stripeClients{prices: prices})

	result, err := provider.EnsurePrice(context.Background(), EnsurePriceRequest{
		ProductRef: "pos_org-1_p1",
		OrgID:      "org-1",
		PriceID:    "price-1",
		Amount:     9900,
		Unit:       domain.BillingMonthly,
	})
	if err != nil {
		t.Fatalf("EnsurePrice: %v", err)
	}

	if !result.Created || result.Ref != "price_new" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(prices.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(prices.created))
	}
	params := prices.created[0]
	if got := stripe.StringValue(params.LookupKey); got != "pos_org-1_price_price-1" {
		t.Fatalf("unexpected lookup key %q", got)
	}
	if got := stripe.StringValue(params.Currency); got != "usd" {
		t.Fatalf("expected default currency usd, got %q", got)
	}
	if got := stripe.StringValue(params.Recurring.Interval); got != "month" {
		t.Fatalf("unexpected interval %q", got)
	}
}

func TestStripeProviderEnsurePriceReusesLookupMatch(t *testing.T) {
	prices := &fakePriceAPI{existing: []*stripe.Price{{ID: "price_existing"}}}
	provider := newFakeProvider(t, &stripeClients{prices: prices})

	result, err := provider.EnsurePrice(context.Background(), EnsurePriceRequest{
		OrgID:   "org-1",
		PriceID: "price-1",
		Unit:    domain.BillingMonthly,
	})
	if err != nil {
		t.Fatalf("EnsurePrice: %v", err)
	}
	if result.Created || result.Ref != "price_existing" {
		t.Fatalf("expected lookup match to be reused, got %+v", result)
	}
}

func TestStripeProviderCreateSubscription(t *testing.T) {
	subs := &fakeSubscriptionAPI{}
	provider := newFakeProvider(t, &stripeClients{subscriptions: subs})

	sub, err := provider.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		CustomerRef:    "cus_1",
		PriceRef:       "price_1",
		IdempotencyKey: "txn_1:p1:price-1",
		Metadata:       map[string]string{"orgId": "org-1"},
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	if sub.Ref != "sub_new" || sub.Status != string(stripe.SubscriptionStatusActive) {
		t.Fatalf("unexpected subscription %+v", sub)
	}
	params := subs.created[0]
	if got := stripe.StringValue(params.Customer); got != "cus_1" {
		t.Fatalf("unexpected customer %q", got)
	}
	if got := stripe.StringValue(params.IdempotencyKey); got != "txn_1:p1:price-1" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if params.Metadata["orgId"] != "org-1" {
		t.Fatalf("unexpected metadata %+v", params.Metadata)
	}
}

func TestStripeProviderSubscriptionErrorPassesThrough(t *testing.T) {
	subs := &fakeSubscriptionAPI{err: errors.New("card declined")}
	provider := newFakeProvider(t, &stripeClients{subscriptions: subs})

	if _, err := provider.CreateSubscription(context.Background(), CreateSubscriptionRequest{
		CustomerRef: "cus_1",
		PriceRef:    "price_1",
	}); err == nil {
		t.Fatalf("expected subscription error")
	}
}

func TestStripeIntervalMapping(t *testing.T) {
	cases := []struct {
		unit     domain.BillingUnit
		interval string
		count    int64
	}{
		{domain.BillingWeekly, "week", 1},
		{domain.BillingFortnightly, "week", 2},
		{domain.BillingMonthly, "month", 1},
		{domain.BillingYearly, "year", 1},
	}
	for _, tc := range cases {
		interval, count, err := stripeInterval(tc.unit)
		if err != nil {
			t.Fatalf("%s: %v", tc.unit, err)
		}
		if interval != tc.interval || count != tc.count {
			t.Errorf("%s: expected %s/%d, got %s/%d", tc.unit, tc.interval, tc.count, interval, count)
		}
	}
	if _, _, err := stripeInterval("daily"); err == nil {
		t.Fatalf("expected error for unsupported unit")
	}
}

func TestNewStripeProviderRequiresKeyOrClients(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key or clients")
	}
}

func TestManagerResolve(t *testing.T) {
	provider := newFakeProvider(t, &stripeClients{})
	manager, err := NewManager(map[string]RecurringBillingProvider{"Stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if got, err := manager.Resolve("stripe"); err != nil || got != provider {
		t.Fatalf("expected stripe provider, got %v (%v)", got, err)
	}
	if got, err := manager.Resolve(""); err != nil || got != provider {
		t.Fatalf("expected default provider, got %v (%v)", got, err)
	}
	if _, err := manager.Resolve("paypal"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty provider map")
	}
}
