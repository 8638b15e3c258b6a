package services

import (
	"context"

	domain "github.com/studiopos/api/internal/domain"
)

// Aliases keep service signatures terse while the canonical types live in domain.
type (
	Cart              = domain.Cart
	LineItem          = domain.LineItem
	AdjustmentItem    = domain.AdjustmentItem
	AdjustmentLedger  = domain.AdjustmentLedger
	CartAdjustments   = domain.CartAdjustments
	Rule              = domain.Rule
	Adjustment        = domain.Adjustment
	Customer          = domain.Customer
	Membership        = domain.Membership
	MembershipPrice   = domain.MembershipPrice
	Transaction       = domain.Transaction
	TransactionLine   = domain.TransactionLine
	TransactionStatus = domain.TransactionStatus
	PaymentMethod     = domain.PaymentMethod
	OrgSettings       = domain.OrgSettings
	DiscountUsage     = domain.DiscountUsage
	CreditEntry       = domain.CreditEntry
)

// EventPublisher pushes domain events to the async pipeline. Failures are
// logged by callers, never surfaced to the customer flow.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Event is a loosely typed message for downstream consumers.
type Event struct {
	Name       string
	OrgID      string
	Payload    map[string]any
	Attributes map[string]string
}

// ReceiptSender delivers a transaction receipt to a customer.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, req ReceiptRequest) error
}

// ReceiptRequest carries everything the mailer needs to render a receipt.
type ReceiptRequest struct {
	To           string
	CustomerName string
	Transaction  Transaction
	OrgName      string
	FromAddress  string
	CurrencyCode string
}
