package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/payments"
	"github.com/studiopos/api/internal/repositories"
)

const (
	transactionIDPrefix = "txn_"
	membershipIDPrefix  = "mem_"
)

// PaymentOutcome is the processor result the register reports when closing a sale.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded    PaymentOutcome = "succeeded"
	PaymentOutcomeSetupPending PaymentOutcome = "setup_pending"
	PaymentOutcomeFailed       PaymentOutcome = "failed"
)

// SettlementService records completed payments and reconciles the documents
// that hang off them: the transaction itself, membership subscriptions, stock,
// discount usage, credit balances, receipts and the finalized event.
type SettlementService struct {
	transactions repositories.TransactionRepository
	customers    repositories.CustomerRepository
	memberships  repositories.MembershipRepository
	products     repositories.ProductRepository
	orgSettings  repositories.OrgSettingsRepository
	billing      payments.RecurringBillingProvider
	receipts     ReceiptSender
	events       EventPublisher
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

type SettlementServiceDeps struct {
	Transactions repositories.TransactionRepository
	Customers    repositories.CustomerRepository
	Memberships  repositories.MembershipRepository
	Products     repositories.ProductRepository
	OrgSettings  repositories.OrgSettingsRepository
	Billing      payments.RecurringBillingProvider
	Receipts     ReceiptSender
	Events       EventPublisher
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

func NewSettlementService(deps SettlementServiceDeps) (*SettlementService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("settlement service: transaction repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("settlement service: customer repository is required")
	}
	if deps.Memberships == nil {
		return nil, errors.New("settlement service: membership repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &SettlementService{
		transactions: deps.Transactions,
		customers:    deps.Customers,
		memberships:  deps.Memberships,
		products:     deps.Products,
		orgSettings:  deps.OrgSettings,
		billing:      deps.Billing,
		receipts:     deps.Receipts,
		events:       deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

type FinalizePaymentCommand struct {
	Cart          Cart
	EmployeeID    string
	PaymentMethod PaymentMethod
	ProcessorRef  string
	Outcome       PaymentOutcome
	Currency      string
}

// FinalizePayment persists the transaction for an already-settled payment and
// runs the downstream reconciliation. Subscription provisioning failures are
// raised; every other side effect is contained and only logged.
func (s *SettlementService) FinalizePayment(ctx context.Context, cmd FinalizePaymentCommand) (Transaction, error) {
	if err := s.validateFinalize(cmd); err != nil {
		return Transaction{}, err
	}

	now := s.clock()
	cart := cmd.Cart
	customerID := resolveTransactionCustomer(cart)

	txn := Transaction{
		ID:            transactionIDPrefix + s.newID(),
		OrgID:         cart.OrgID,
		CustomerID:    customerID,
		EmployeeID:    strings.TrimSpace(cmd.EmployeeID),
		Subtotal:      cart.Subtotal,
		Tax:           cart.Tax,
		Total:         cart.Total,
		Adjustments:   cart.Adjustments.Clone(),
		Lines:         buildTransactionLines(cart.Items),
		PaymentMethod: cmd.PaymentMethod,
		ProcessorRef:  strings.TrimSpace(cmd.ProcessorRef),
		Status:        deriveStatus(cart, cmd.PaymentMethod, cmd.Outcome),
		CreatedAt:     now,
	}

	if err := s.transactions.Insert(ctx, txn); err != nil {
		return Transaction{}, err
	}
	s.logger(ctx, "transaction_recorded", map[string]any{
		"orgId":         txn.OrgID,
		"transactionId": txn.ID,
		"status":        string(txn.Status),
		"total":         txn.Total,
	})

	if cmd.Outcome == PaymentOutcomeSucceeded {
		if hasMembershipItems(cart.Items) {
			if err := s.provisionMemberships(ctx, txn, cart.Items, cmd.Currency, now); err != nil {
				return Transaction{}, fmt.Errorf("%w: %v", ErrSettlementBilling, err)
			}
		}
		s.runSideEffects(ctx, txn, cart)
	}

	return txn, nil
}

type CompleteSetupCommand struct {
	OrgID         string
	TransactionID string
	Currency      string
}

// CompleteSetup finishes a transaction that was recorded while the processor
// setup was still pending: it provisions the membership subscriptions from the
// stored lines, flips the status, and runs the deferred side effects.
func (s *SettlementService) CompleteSetup(ctx context.Context, cmd CompleteSetupCommand) (Transaction, error) {
	orgID := strings.TrimSpace(cmd.OrgID)
	txnID := strings.TrimSpace(cmd.TransactionID)
	if orgID == "" || txnID == "" {
		return Transaction{}, fmt.Errorf("%w: org id and transaction id are required", ErrSettlementInvalidInput)
	}

	txn, err := s.transactions.FindByID(ctx, orgID, txnID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Transaction{}, fmt.Errorf("%w: %s", ErrSettlementNotFound, txnID)
		}
		return Transaction{}, err
	}
	if txn.Status != domain.TransactionStatusSetupPending {
		return Transaction{}, fmt.Errorf("%w: transaction %s is not awaiting setup", ErrSettlementInvalidInput, txnID)
	}

	now := s.clock()
	items := linesToItems(txn.Lines)
	if err := s.provisionMemberships(ctx, txn, items, cmd.Currency, now); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrSettlementBilling, err)
	}

	status := domain.TransactionStatusSubscriptionActive
	if err := s.transactions.UpdateStatus(ctx, orgID, txnID, status); err != nil {
		return Transaction{}, err
	}
	txn.Status = status

	cart := Cart{
		ID:          "",
		OrgID:       txn.OrgID,
		CustomerID:  txn.CustomerID,
		Items:       items,
		Subtotal:    txn.Subtotal,
		Tax:         txn.Tax,
		Total:       txn.Total,
		Adjustments: txn.Adjustments.Clone(),
	}
	s.runSideEffects(ctx, txn, cart)

	return txn, nil
}

func (s *SettlementService) validateFinalize(cmd FinalizePaymentCommand) error {
	if strings.TrimSpace(cmd.Cart.OrgID) == "" {
		return fmt.Errorf("%w: org id is required", ErrSettlementInvalidInput)
	}
	if len(cmd.Cart.Items) == 0 {
		return fmt.Errorf("%w: cart must contain at least one item", ErrSettlementInvalidInput)
	}
	switch cmd.Outcome {
	case PaymentOutcomeSucceeded, PaymentOutcomeSetupPending, PaymentOutcomeFailed:
	default:
		return fmt.Errorf("%w: unknown payment outcome %q", ErrSettlementInvalidInput, cmd.Outcome)
	}
	if strings.TrimSpace(string(cmd.PaymentMethod)) == "" {
		return fmt.Errorf("%w: payment method is required", ErrSettlementInvalidInput)
	}
	for _, item := range cmd.Cart.Items {
		if item.Type == domain.ProductTypeMembership && item.Price == nil {
			return fmt.Errorf("%w: membership item %s has no recurring price", ErrSettlementInvalidInput, item.ID)
		}
	}
	return nil
}

// provisionMemberships mirrors each membership line item onto the processor
// and records a Membership document per line. Processor failures abort; a
// membership document that fails to persist is logged and skipped because the
// processor subscription remains the source of truth.
func (s *SettlementService) provisionMemberships(ctx context.Context, txn Transaction, items []LineItem, currency string, now time.Time) error {
	if s.billing == nil {
		return errors.New("billing provider is not configured")
	}

	payerRef, err := s.resolvePayerRef(ctx, txn.OrgID, txn.CustomerID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.Type != domain.ProductTypeMembership || item.Price == nil {
			continue
		}

		product, err := s.billing.EnsureProduct(ctx, payments.EnsureProductRequest{
			OrgID:     txn.OrgID,
			ProductID: item.ProductID,
			Name:      item.Name,
		})
		if err != nil {
			return err
		}

		price, err := s.billing.EnsurePrice(ctx, payments.EnsurePriceRequest{
			ProductRef: product.Ref,
			OrgID:      txn.OrgID,
			PriceID:    item.Price.ID,
			Amount:     item.Price.Amount,
			Currency:   currency,
			Unit:       item.Price.Unit,
		})
		if err != nil {
			return err
		}

		subscription, err := s.billing.CreateSubscription(ctx, payments.CreateSubscriptionRequest{
			CustomerRef: payerRef,
			PriceRef:    price.Ref,
			Metadata: map[string]string{
				"orgId":         txn.OrgID,
				"customerId":    txn.CustomerID,
				"transactionId": txn.ID,
				"productId":     item.ProductID,
			},
			IdempotencyKey: txn.ID + ":" + item.ProductID + ":" + item.Price.ID,
		})
		if err != nil {
			return err
		}

		membership := Membership{
			ID:              membershipIDPrefix + s.newID(),
			OrgID:           txn.OrgID,
			CustomerID:      membershipCustomer(item, txn.CustomerID),
			ProductID:       item.ProductID,
			PriceID:         item.Price.ID,
			Unit:            item.Price.Unit,
			Amount:          item.Price.Amount,
			NextBillingDate: addBillingPeriods(now, item.Price.Unit, 1),
			SubscriptionRef: subscription.Ref,
			Status:          domain.MembershipStatusActive,
			CreatedAt:       now,
		}
		if item.Price.BillingMax > 0 {
			end := addBillingPeriods(now, item.Price.Unit, item.Price.BillingMax)
			membership.SubscriptionEndDate = &end
		}
		if item.Dependent != nil {
			dep := *item.Dependent
			membership.Dependent = &dep
		}

		if err := s.memberships.Insert(ctx, membership); err != nil {
			s.logger(ctx, "membership_record_persist_failed", map[string]any{
				"orgId":         txn.OrgID,
				"transactionId": txn.ID,
				"subscription":  subscription.Ref,
				"error":         err.Error(),
			})
			continue
		}
		s.logger(ctx, "membership_created", map[string]any{
			"orgId":        txn.OrgID,
			"membershipId": membership.ID,
			"subscription": subscription.Ref,
		})
	}
	return nil
}

// resolvePayerRef returns the processor customer reference for the paying
// customer, provisioning one on first use. A failure to persist the new ref is
// logged; the subscription still proceeds with the fresh reference.
func (s *SettlementService) resolvePayerRef(ctx context.Context, orgID, customerID string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("membership cart has no customer")
	}
	customer, err := s.customers.FindByID(ctx, orgID, customerID)
	if err != nil {
		return "", err
	}
	if customer.ProcessorRef != "" {
		return customer.ProcessorRef, nil
	}

	ref, err := s.billing.CreateCustomer(ctx, payments.CreateCustomerRequest{
		OrgID:      orgID,
		CustomerID: customerID,
		Email:      customer.Email,
		Name:       strings.TrimSpace(customer.FirstName + " " + customer.LastName),
	})
	if err != nil {
		return "", err
	}
	if err := s.customers.SetProcessorRef(ctx, orgID, customerID, ref); err != nil {
		s.logger(ctx, "customer_processor_ref_persist_failed", map[string]any{
			"orgId":      orgID,
			"customerId": customerID,
			"error":      err.Error(),
		})
	}
	return ref, nil
}

// runSideEffects performs the contained post-payment effects. Each failure is
// logged and never interrupts the others.
func (s *SettlementService) runSideEffects(ctx context.Context, txn Transaction, cart Cart) {
	s.decrementStock(ctx, txn, cart.Items)
	s.appendDiscountUsage(ctx, txn, cart)
	s.debitCredits(ctx, txn, cart)
	s.sendReceipt(ctx, txn, cart)
	s.publishFinalized(ctx, txn)
}

func (s *SettlementService) decrementStock(ctx context.Context, txn Transaction, items []LineItem) {
	if s.products == nil {
		return
	}
	for _, item := range items {
		if !item.TrackStock || item.Quantity <= 0 {
			continue
		}
		remaining, err := s.products.DecrementStock(ctx, txn.OrgID, item.ProductID, item.Quantity)
		if err != nil {
			s.logger(ctx, "stock_decrement_failed", map[string]any{
				"orgId":     txn.OrgID,
				"productId": item.ProductID,
				"error":     err.Error(),
			})
			continue
		}
		s.logger(ctx, "stock_decremented", map[string]any{
			"orgId":     txn.OrgID,
			"productId": item.ProductID,
			"remaining": remaining,
		})
	}
}

func (s *SettlementService) appendDiscountUsage(ctx context.Context, txn Transaction, cart Cart) {
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" || len(cart.Adjustments.Discounts.Items) == 0 {
		return
	}
	for _, item := range cart.Adjustments.Discounts.Items {
		usage := DiscountUsage{
			DiscountID: item.RuleID,
			Amount:     item.Amount,
			Custom:     item.Custom,
			UsedAt:     txn.CreatedAt,
		}
		if err := s.customers.AppendDiscountUsage(ctx, txn.OrgID, customerID, usage); err != nil {
			s.logger(ctx, "discount_usage_append_failed", map[string]any{
				"orgId":      txn.OrgID,
				"customerId": customerID,
				"discountId": item.RuleID,
				"error":      err.Error(),
			})
		}
	}
}

func (s *SettlementService) debitCredits(ctx context.Context, txn Transaction, cart Cart) {
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" || cart.Adjustments.Credits <= 0 {
		return
	}
	entry := CreditEntry{
		Amount:        cart.Adjustments.Credits,
		Note:          "Applied to purchase",
		TransactionID: txn.ID,
		Date:          txn.CreatedAt,
	}
	balance, err := s.customers.DebitCredits(ctx, txn.OrgID, customerID, entry)
	if err != nil {
		s.logger(ctx, "credit_debit_failed", map[string]any{
			"orgId":      txn.OrgID,
			"customerId": customerID,
			"error":      err.Error(),
		})
		return
	}
	s.logger(ctx, "credits_debited", map[string]any{
		"orgId":      txn.OrgID,
		"customerId": customerID,
		"amount":     cart.Adjustments.Credits,
		"balance":    balance,
	})
}

func (s *SettlementService) sendReceipt(ctx context.Context, txn Transaction, cart Cart) {
	if s.receipts == nil {
		return
	}
	customerID := strings.TrimSpace(txn.CustomerID)
	if customerID == "" {
		return
	}

	var settings OrgSettings
	if s.orgSettings != nil {
		loaded, err := s.orgSettings.Get(ctx, txn.OrgID)
		if err == nil {
			settings = loaded
		}
	}
	if allShopItems(cart.Items) && !settings.AutoReceipt {
		return
	}

	customer, err := s.customers.FindByID(ctx, txn.OrgID, customerID)
	if err != nil || strings.TrimSpace(customer.Email) == "" {
		if err != nil {
			s.logger(ctx, "receipt_customer_lookup_failed", map[string]any{
				"orgId":      txn.OrgID,
				"customerId": customerID,
				"error":      err.Error(),
			})
		}
		return
	}

	req := ReceiptRequest{
		To:           customer.Email,
		CustomerName: strings.TrimSpace(customer.FirstName + " " + customer.LastName),
		Transaction:  txn,
		OrgName:      settings.ReceiptName,
		FromAddress:  settings.ReceiptFrom,
		CurrencyCode: settings.CurrencyCode,
	}
	if err := s.receipts.SendReceipt(ctx, req); err != nil {
		s.logger(ctx, "receipt_send_failed", map[string]any{
			"orgId":         txn.OrgID,
			"transactionId": txn.ID,
			"error":         err.Error(),
		})
	}
}

func (s *SettlementService) publishFinalized(ctx context.Context, txn Transaction) {
	if s.events == nil {
		return
	}
	event := Event{
		Name:  "transaction.finalized",
		OrgID: txn.OrgID,
		Payload: map[string]any{
			"transactionId": txn.ID,
			"customerId":    txn.CustomerID,
			"status":        string(txn.Status),
			"paymentMethod": string(txn.PaymentMethod),
			"total":         txn.Total,
		},
		Attributes: map[string]string{
			"orgId": txn.OrgID,
			"event": "transaction.finalized",
		},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "transaction_event_publish_failed", map[string]any{
			"orgId":         txn.OrgID,
			"transactionId": txn.ID,
			"error":         err.Error(),
		})
	}
}

// resolveTransactionCustomer prefers the first participant named on any line
// item, falling back to the cart's customer.
func resolveTransactionCustomer(cart Cart) string {
	for _, item := range cart.Items {
		for _, participant := range item.Participants {
			if strings.TrimSpace(participant) != "" {
				return strings.TrimSpace(participant)
			}
		}
	}
	return strings.TrimSpace(cart.CustomerID)
}

func membershipCustomer(item LineItem, fallback string) string {
	if item.Dependent != nil {
		return fallback
	}
	for _, participant := range item.Participants {
		if strings.TrimSpace(participant) != "" {
			return strings.TrimSpace(participant)
		}
	}
	return fallback
}

func deriveStatus(cart Cart, method PaymentMethod, outcome PaymentOutcome) TransactionStatus {
	switch outcome {
	case PaymentOutcomeFailed:
		return domain.TransactionStatusFailed
	case PaymentOutcomeSetupPending:
		return domain.TransactionStatusSetupPending
	}
	if hasMembershipItems(cart.Items) {
		if method == domain.PaymentMethodSubscription {
			return domain.TransactionStatusSubscriptionActive
		}
		return domain.TransactionStatusFirstPeriodPaid
	}
	return domain.TransactionStatusSucceeded
}

func hasMembershipItems(items []LineItem) bool {
	for _, item := range items {
		if item.Type == domain.ProductTypeMembership {
			return true
		}
	}
	return false
}

func allShopItems(items []LineItem) bool {
	for _, item := range items {
		if item.Type != domain.ProductTypeShop {
			return false
		}
	}
	return len(items) > 0
}

// buildTransactionLines snapshots the cart lines, deep-copying the ledgers so
// later cart mutations cannot reach the stored record. Custom flags on ledger
// items survive the copy.
func buildTransactionLines(items []LineItem) []TransactionLine {
	lines := make([]TransactionLine, 0, len(items))
	for _, item := range items {
		line := TransactionLine{
			ProductID:        item.ProductID,
			CategoryID:       item.CategoryID,
			Name:             item.Name,
			Type:             item.Type,
			Quantity:         item.Quantity,
			OriginalSubtotal: item.OriginalSubtotal,
			AdjustedSubtotal: item.AdjustedSubtotal,
			Tax:              item.Tax,
			Total:            item.Total,
			TrackStock:       item.TrackStock,
			Adjustments:      item.Adjustments.Clone(),
		}
		if len(item.Participants) > 0 {
			line.Participants = make([]string, len(item.Participants))
			copy(line.Participants, item.Participants)
		}
		if item.Price != nil {
			price := *item.Price
			line.Price = &price
		}
		if item.Dependent != nil {
			dep := *item.Dependent
			line.Dependent = &dep
		}
		lines = append(lines, line)
	}
	return lines
}

// linesToItems rebuilds minimal line items from stored transaction lines for
// deferred provisioning and side effects.
func linesToItems(lines []TransactionLine) []LineItem {
	items := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		item := LineItem{
			ProductID:        line.ProductID,
			CategoryID:       line.CategoryID,
			Name:             line.Name,
			Type:             line.Type,
			Quantity:         line.Quantity,
			OriginalSubtotal: line.OriginalSubtotal,
			AdjustedSubtotal: line.AdjustedSubtotal,
			Tax:              line.Tax,
			Total:            line.Total,
			TrackStock:       line.TrackStock,
			Adjustments:      line.Adjustments.Clone(),
		}
		if len(line.Participants) > 0 {
			item.Participants = make([]string, len(line.Participants))
			copy(item.Participants, line.Participants)
		}
		if line.Price != nil {
			price := *line.Price
			item.Price = &price
		}
		if line.Dependent != nil {
			dep := *line.Dependent
			item.Dependent = &dep
		}
		items = append(items, item)
	}
	return items
}

// addBillingPeriods advances t by n billing periods of the given unit.
func addBillingPeriods(t time.Time, unit domain.BillingUnit, n int) time.Time {
	switch unit {
	case domain.BillingWeekly:
		return t.AddDate(0, 0, 7*n)
	case domain.BillingFortnightly:
		return t.AddDate(0, 0, 14*n)
	case domain.BillingMonthly:
		return t.AddDate(0, n, 0)
	case domain.BillingYearly:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}
