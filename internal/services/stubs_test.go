package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/payments"
	"github.com/studiopos/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	unavailable bool
}

func (e stubRepoError) Error() string {
	if e.notFound {
		return "not found"
	}
	if e.unavailable {
		return "unavailable"
	}
	return "repository error"
}

func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return false }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = stubRepoError{}

type stubRuleRepo struct {
	rules []domain.Rule
	err   error
}

func (s *stubRuleRepo) FindByID(_ context.Context, _ string, ruleID string) (domain.Rule, error) {
	if s.err != nil {
		return domain.Rule{}, s.err
	}
	for _, rule := range s.rules {
		if rule.ID == ruleID {
			return rule, nil
		}
	}
	return domain.Rule{}, stubRepoError{notFound: true}
}

func (s *stubRuleRepo) FindByCode(_ context.Context, _ string, code string) (domain.Rule, error) {
	if s.err != nil {
		return domain.Rule{}, s.err
	}
	for _, rule := range s.rules {
		if rule.Code == code {
			return rule, nil
		}
	}
	return domain.Rule{}, stubRepoError{notFound: true}
}

func (s *stubRuleRepo) List(_ context.Context, _ string, filter repositories.RuleListFilter) ([]domain.Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if filter.Mode != "" && rule.Mode != filter.Mode {
			continue
		}
		if filter.AutoAssignOnly && !rule.AutoAssign {
			continue
		}
		out = append(out, rule)
	}
	return out, nil
}

type stubMembershipRepo struct {
	active    []domain.Membership
	inserted  []domain.Membership
	insertErr error
	findErr   error
}

func (s *stubMembershipRepo) Insert(_ context.Context, membership domain.Membership) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, membership)
	return nil
}

func (s *stubMembershipRepo) FindActive(_ context.Context, _ string, _ string, _ time.Time) ([]domain.Membership, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.active, nil
}

type stubCustomerRepo struct {
	customers map[string]domain.Customer
	usages    []domain.DiscountUsage
	usageErr  error
	debits    []domain.CreditEntry
	balance   int64
	refs      map[string]string
	refErr    error
}

func (s *stubCustomerRepo) FindByID(_ context.Context, _ string, customerID string) (domain.Customer, error) {
	customer, ok := s.customers[customerID]
	if !ok {
		return domain.Customer{}, stubRepoError{notFound: true}
	}
	return customer, nil
}

func (s *stubCustomerRepo) AppendDiscountUsage(_ context.Context, _ string, _ string, usage domain.DiscountUsage) error {
	if s.usageErr != nil {
		return s.usageErr
	}
	s.usages = append(s.usages, usage)
	return nil
}

func (s *stubCustomerRepo) DebitCredits(_ context.Context, _ string, _ string, entry domain.CreditEntry) (int64, error) {
	s.debits = append(s.debits, entry)
	s.balance -= entry.Amount
	return s.balance, nil
}

func (s *stubCustomerRepo) SetProcessorRef(_ context.Context, _ string, customerID string, ref string) error {
	if s.refErr != nil {
		return s.refErr
	}
	if s.refs == nil {
		s.refs = make(map[string]string)
	}
	s.refs[customerID] = ref
	return nil
}

type stubProductRepo struct {
	decrements map[string]int
	remaining  int64
	err        error
}

func (s *stubProductRepo) DecrementStock(_ context.Context, _ string, productID string, quantity int) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.decrements == nil {
		s.decrements = make(map[string]int)
	}
	s.decrements[productID] += quantity
	return s.remaining, nil
}

type stubOrgSettingsRepo struct {
	settings domain.OrgSettings
	err      error
}

func (s *stubOrgSettingsRepo) Get(context.Context, string) (domain.OrgSettings, error) {
	if s.err != nil {
		return domain.OrgSettings{}, s.err
	}
	return s.settings, nil
}

type stubTransactionRepo struct {
	inserted  []domain.Transaction
	insertErr error
	stored    map[string]domain.Transaction
	statuses  map[string]domain.TransactionStatus
}

func (s *stubTransactionRepo) Insert(_ context.Context, txn domain.Transaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, txn)
	return nil
}

func (s *stubTransactionRepo) FindByID(_ context.Context, _ string, txnID string) (domain.Transaction, error) {
	txn, ok := s.stored[txnID]
	if !ok {
		return domain.Transaction{}, stubRepoError{notFound: true}
	}
	return txn, nil
}

func (s *stubTransactionRepo) UpdateStatus(_ context.Context, _ string, txnID string, status domain.TransactionStatus) error {
	if s.statuses == nil {
		s.statuses = make(map[string]domain.TransactionStatus)
	}
	s.statuses[txnID] = status
	return nil
}

type stubBilling struct {
	products      []payments.EnsureProductRequest
	prices        []payments.EnsurePriceRequest
	customers     []payments.CreateCustomerRequest
	subscriptions []payments.CreateSubscriptionRequest
	subErr        error
}

func (s *stubBilling) EnsureProduct(_ context.Context, req payments.EnsureProductRequest) (payments.BillingProduct, error) {
	s.products = append(s.products, req)
	return payments.BillingProduct{Ref: "prod_" + req.ProductID}, nil
}

func (s *stubBilling) EnsurePrice(_ context.Context, req payments.EnsurePriceRequest) (payments.BillingPrice, error) {
	s.prices = append(s.prices, req)
	return payments.BillingPrice{Ref: "price_" + req.PriceID}, nil
}

func (s *stubBilling) CreateCustomer(_ context.Context, req payments.CreateCustomerRequest) (string, error) {
	s.customers = append(s.customers, req)
	return "cus_" + req.CustomerID, nil
}

func (s *stubBilling) CreateSubscription(_ context.Context, req payments.CreateSubscriptionRequest) (payments.Subscription, error) {
	if s.subErr != nil {
		return payments.Subscription{}, s.subErr
	}
	s.subscriptions = append(s.subscriptions, req)
	return payments.Subscription{Ref: fmt.Sprintf("sub_%d", len(s.subscriptions)), Status: "active"}, nil
}

type stubReceiptSender struct {
	requests []ReceiptRequest
	err      error
}

func (s *stubReceiptSender) SendReceipt(_ context.Context, req ReceiptRequest) error {
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

type stubEventPublisher struct {
	events []Event
	err    error
}

func (s *stubEventPublisher) Publish(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newTestRuleService(t *testing.T, repo repositories.RuleRepository, now time.Time) *RuleService {
	t.Helper()
	svc, err := NewRuleService(RuleServiceDeps{
		Rules: repo,
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewRuleService: %v", err)
	}
	return svc
}
