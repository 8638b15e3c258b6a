package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/platform/auth"
	"github.com/studiopos/api/internal/payments"
	"github.com/studiopos/api/internal/services"
)

type fakeTransactionRepo struct {
	inserted []domain.Transaction
	stored   map[string]domain.Transaction
	statuses map[string]domain.TransactionStatus
}

func (f *fakeTransactionRepo) Insert(_ context.Context, txn domain.Transaction) error {
	f.inserted = append(f.inserted, txn)
	return nil
}

func (f *fakeTransactionRepo) FindByID(_ context.Context, _ string, txnID string) (domain.Transaction, error) {
	txn, ok := f.stored[txnID]
	if !ok {
		return domain.Transaction{}, fakeRepoError{notFound: true}
	}
	return txn, nil
}

func (f *fakeTransactionRepo) UpdateStatus(_ context.Context, _ string, txnID string, status domain.TransactionStatus) error {
	if f.statuses == nil {
		f.statuses = make(map[string]domain.TransactionStatus)
	}
	f.statuses[txnID] = status
	return nil
}

type fakeBillingProvider struct {
	subscriptions []payments.CreateSubscriptionRequest
}

func (f *fakeBillingProvider) EnsureProduct(_ context.Context, req payments.EnsureProductRequest) (payments.BillingProduct, error) {
	return payments.BillingProduct{Ref: "prod_" + req.ProductID}, nil
}

func (f *fakeBillingProvider) EnsurePrice(_ context.Context, req payments.EnsurePriceRequest) (payments.BillingPrice, error) {
	return payments.BillingPrice{Ref: "price_" + req.PriceID}, nil
}

func (f *fakeBillingProvider) CreateCustomer(_ context.Context, req payments.CreateCustomerRequest) (string, error) {
	return "cus_" + req.CustomerID, nil
}

func (f *fakeBillingProvider) CreateSubscription(_ context.Context, req payments.CreateSubscriptionRequest) (payments.Subscription, error) {
	f.subscriptions = append(f.subscriptions, req)
	return payments.Subscription{Ref: "sub_1", Status: "active"}, nil
}

func newTestSettlement(t *testing.T, txns *fakeTransactionRepo) *services.SettlementService {
	t.Helper()
	svc, err := services.NewSettlementService(services.SettlementServiceDeps{
		Transactions: txns,
		Customers:    &fakeCustomerRepo{customers: map[string]domain.Customer{"cus-1": {ID: "cus-1", Email: "member@example.com"}}},
		Memberships:  &fakeMembershipRepo{},
		Billing:      &fakeBillingProvider{},
		Clock:        func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) },
		IDGenerator:  func() string { return "01HYZTEST" },
	})
	if err != nil {
		t.Fatalf("NewSettlementService: %v", err)
	}
	return svc
}

func TestTransactionHandlersFinalizeSuccess(t *testing.T) {
	router := chi.NewRouter()
	txns := &fakeTransactionRepo{}
	handler := NewTransactionHandlers(nil, newTestSettlement(t, txns))
	handler.Routes(router)

	payload := `{
		"cart": {"orgId":"org-1","customerId":"cus-1","items":[{"productId":"p1","name":"Day pass","type":"shop","quantity":1,"originalSubtotal":5000,"adjustedSubtotal":5000,"tax":500,"total":5500}],"subtotal":5000,"tax":500,"total":5500},
		"paymentMethod": "card",
		"processorRef": "pi_123",
		"outcome": "succeeded"
	}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "emp-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transaction.ID != "txn_01HYZTEST" {
		t.Fatalf("unexpected transaction id %s", resp.Transaction.ID)
	}
	if resp.Transaction.Status != string(domain.TransactionStatusSucceeded) {
		t.Fatalf("expected status succeeded, got %s", resp.Transaction.Status)
	}
	if resp.Transaction.EmployeeID != "emp-1" {
		t.Fatalf("expected employee from identity, got %s", resp.Transaction.EmployeeID)
	}
	if len(txns.inserted) != 1 {
		t.Fatalf("expected 1 inserted transaction, got %d", len(txns.inserted))
	}
}

func TestTransactionHandlersFinalizeMissingPaymentMethod(t *testing.T) {
	router := chi.NewRouter()
	handler := NewTransactionHandlers(nil, newTestSettlement(t, &fakeTransactionRepo{}))
	handler.Routes(router)

	payload := `{"cart":{"orgId":"org-1","items":[{"productId":"p1","type":"shop","quantity":1,"originalSubtotal":5000}]},"outcome":"succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var errResp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request, got %v", errResp["error"])
	}
}

func TestTransactionHandlersCompleteSetupNotFound(t *testing.T) {
	router := chi.NewRouter()
	handler := NewTransactionHandlers(nil, newTestSettlement(t, &fakeTransactionRepo{stored: map[string]domain.Transaction{}}))
	handler.Routes(router)

	payload := `{"orgId":"org-1"}`
	req := httptest.NewRequest(http.MethodPost, "/txn_missing/complete-setup", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var errResp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp["error"] != "transaction_not_found" {
		t.Fatalf("expected transaction_not_found, got %v", errResp["error"])
	}
}

func TestTransactionHandlersCompleteSetupActivatesSubscription(t *testing.T) {
	router := chi.NewRouter()
	pending := domain.Transaction{
		ID:         "txn_pending",
		OrgID:      "org-1",
		CustomerID: "cus-1",
		Status:     domain.TransactionStatusSetupPending,
		Lines: []domain.TransactionLine{{
			ProductID: "memb-1",
			Name:      "Monthly membership",
			Type:      domain.ProductTypeMembership,
			Quantity:  1,
			Price: &domain.MembershipPrice{
				ID:     "price-1",
				Amount: 9900,
				Unit:   domain.BillingMonthly,
			},
		}},
	}
	txns := &fakeTransactionRepo{stored: map[string]domain.Transaction{"txn_pending": pending}}
	handler := NewTransactionHandlers(nil, newTestSettlement(t, txns))
	handler.Routes(router)

	payload := `{"orgId":"org-1","currency":"usd"}`
	req := httptest.NewRequest(http.MethodPost, "/txn_pending/complete-setup", bytes.NewBufferString(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp transactionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transaction.Status != string(domain.TransactionStatusSubscriptionActive) {
		t.Fatalf("expected subscription_active, got %s", resp.Transaction.Status)
	}
	if txns.statuses["txn_pending"] != domain.TransactionStatusSubscriptionActive {
		t.Fatalf("expected stored status update, got %v", txns.statuses)
	}
}
