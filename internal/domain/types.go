package domain

import "time"

// ProductType classifies a cart line item by the kind of product it sells.
type ProductType string

const (
	ProductTypeShop       ProductType = "shop"
	ProductTypeClass      ProductType = "class"
	ProductTypeCourse     ProductType = "course"
	ProductTypeGeneral    ProductType = "general"
	ProductTypeMembership ProductType = "membership"
)

// PaymentMethod identifies how a transaction was settled.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodSubscription PaymentMethod = "subscription"
)

// TransactionStatus tracks the settlement lifecycle of a transaction record.
type TransactionStatus string

const (
	TransactionStatusSucceeded          TransactionStatus = "succeeded"
	TransactionStatusSetupPending       TransactionStatus = "setup_pending"
	TransactionStatusFirstPeriodPaid    TransactionStatus = "first_period_paid"
	TransactionStatusSubscriptionActive TransactionStatus = "subscription_active"
	TransactionStatusRefunded           TransactionStatus = "refunded"
	TransactionStatusFailed             TransactionStatus = "failed"
)

// MembershipStatus tracks the lifecycle of a recurring membership.
type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusPending   MembershipStatus = "pending"
	MembershipStatusCancelled MembershipStatus = "cancelled"
)

// BillingUnit enumerates the recurring billing cadences supported by
// membership prices.
type BillingUnit string

const (
	BillingWeekly      BillingUnit = "weekly"
	BillingFortnightly BillingUnit = "fortnightly"
	BillingMonthly     BillingUnit = "monthly"
	BillingYearly      BillingUnit = "yearly"
)

// AdjustmentItem is one ledger entry attributing a monetary effect to a rule.
// Amount is in cents, rounded before append; ledger totals are exact integer
// sums of item amounts.
type AdjustmentItem struct {
	RuleID string
	Name   string
	Amount int64
	Custom bool
}

// AdjustmentLedger accumulates adjustment items of one polarity, either
// discounts or surcharges. Total always equals the sum of Items amounts.
type AdjustmentLedger struct {
	Items []AdjustmentItem
	Total int64
}

// Append records an item and keeps Total consistent.
func (l *AdjustmentLedger) Append(item AdjustmentItem) {
	l.Items = append(l.Items, item)
	l.Total += item.Amount
}

// Clone returns a deep copy of the ledger.
func (l AdjustmentLedger) Clone() AdjustmentLedger {
	dup := AdjustmentLedger{Total: l.Total}
	if len(l.Items) > 0 {
		dup.Items = make([]AdjustmentItem, len(l.Items))
		copy(dup.Items, l.Items)
	}
	return dup
}

// LineAdjustments holds the two independent per-line ledgers.
type LineAdjustments struct {
	Discounts  AdjustmentLedger
	Surcharges AdjustmentLedger
}

// Clone returns a deep copy.
func (a LineAdjustments) Clone() LineAdjustments {
	return LineAdjustments{
		Discounts:  a.Discounts.Clone(),
		Surcharges: a.Surcharges.Clone(),
	}
}

// LineItem is one product entry in a cart. OriginalSubtotal is the immutable
// snapshot taken before any adjustment runs; AdjustedSubtotal, Tax and Total
// are derived and recomputed by the adjustment engine.
type LineItem struct {
	ID               string
	ProductID        string
	CategoryID       string
	Name             string
	Type             ProductType
	Quantity         int
	OriginalSubtotal int64
	AdjustedSubtotal int64
	Tax              int64
	Total            int64
	TrackStock       bool
	Participants     []string
	Price            *MembershipPrice
	Dependent        *Dependent
	Adjustments      LineAdjustments
}

// MembershipPrice describes the recurring price attached to a membership
// line item. BillingMax of zero means the subscription runs until cancelled.
type MembershipPrice struct {
	ID         string
	Amount     int64
	Unit       BillingUnit
	BillingMax int
}

// Dependent is the descriptive snapshot stored on a dependent membership.
// Billing always attaches to the parent customer.
type Dependent struct {
	ID     string
	Name   string
	DOB    *time.Time
	Gender string
}

// CartAdjustments is the cart-level adjustment state produced by the engine.
// DiscountError carries business-rule rejections as data; it never surfaces
// as a Go error.
type CartAdjustments struct {
	Discounts     AdjustmentLedger
	Surcharges    AdjustmentLedger
	Credits       int64
	DiscountError string
}

// Clone returns a deep copy.
func (a CartAdjustments) Clone() CartAdjustments {
	return CartAdjustments{
		Discounts:     a.Discounts.Clone(),
		Surcharges:    a.Surcharges.Clone(),
		Credits:       a.Credits,
		DiscountError: a.DiscountError,
	}
}

// Cart is the transient aggregate priced by the adjustment engine.
// After recomputation Total == Subtotal + Tax and no monetary field is
// negative.
type Cart struct {
	ID          string
	OrgID       string
	CustomerID  string
	Items       []LineItem
	Subtotal    int64
	Tax         int64
	Total       int64
	Adjustments CartAdjustments
}

// Clone returns a deep copy of the cart. The engine never mutates its
// caller's cart; all adjustment work happens on a clone.
func (c Cart) Clone() Cart {
	dup := c
	dup.Adjustments = c.Adjustments.Clone()
	if c.Items != nil {
		dup.Items = make([]LineItem, len(c.Items))
		for i, item := range c.Items {
			dup.Items[i] = item.Clone()
		}
	}
	return dup
}

// Clone returns a deep copy of the line item.
func (li LineItem) Clone() LineItem {
	dup := li
	dup.Adjustments = li.Adjustments.Clone()
	if li.Participants != nil {
		dup.Participants = make([]string, len(li.Participants))
		copy(dup.Participants, li.Participants)
	}
	if li.Price != nil {
		price := *li.Price
		dup.Price = &price
	}
	if li.Dependent != nil {
		dep := *li.Dependent
		dup.Dependent = &dep
	}
	return dup
}

// DiscountUsage is one append-only entry in a customer's discount history.
type DiscountUsage struct {
	DiscountID string
	Amount     int64
	Custom     bool
	UsedAt     time.Time
}

// CreditEntry is one movement on a customer's credit ledger.
type CreditEntry struct {
	Amount        int64
	Note          string
	TransactionID string
	Date          time.Time
}

// CreditLedger holds a customer's store-credit balance and its movements.
// Balance never drops below zero.
type CreditLedger struct {
	Balance int64
	Credits []CreditEntry
	Debits  []CreditEntry
}

// Customer owns a credit ledger and a discount-usage history, both
// append-only.
type Customer struct {
	ID           string
	OrgID        string
	FirstName    string
	LastName     string
	Email        string
	ProcessorRef string
	Credits      CreditLedger
	Discounts    []DiscountUsage
}

// Membership is one recurring subscription record per customer, product and
// price. Created only by the settlement service.
type Membership struct {
	ID                  string
	OrgID               string
	CustomerID          string
	ProductID           string
	PriceID             string
	Unit                BillingUnit
	Amount              int64
	NextBillingDate     time.Time
	SubscriptionEndDate *time.Time
	SubscriptionRef     string
	Status              MembershipStatus
	Dependent           *Dependent
	CreatedAt           time.Time
}

// TransactionLine is the sanitized snapshot of a cart line stored on a
// transaction.
type TransactionLine struct {
	ProductID        string
	CategoryID       string
	Name             string
	Type             ProductType
	Quantity         int
	OriginalSubtotal int64
	AdjustedSubtotal int64
	Tax              int64
	Total            int64
	TrackStock       bool
	Participants     []string
	Price            *MembershipPrice
	Dependent        *Dependent
	Adjustments      LineAdjustments
}

// Transaction is the immutable record of a completed payment. Only Status is
// mutated after creation.
type Transaction struct {
	ID            string
	OrgID         string
	CustomerID    string
	EmployeeID    string
	Subtotal      int64
	Tax           int64
	Total         int64
	Adjustments   CartAdjustments
	Lines         []TransactionLine
	PaymentMethod PaymentMethod
	ProcessorRef  string
	Status        TransactionStatus
	CreatedAt     time.Time
}

// OrgSettings carries per-organisation behaviour consulted by the engine and
// the settlement service.
type OrgSettings struct {
	OrgID        string
	Timezone     string
	AutoReceipt  bool
	ReceiptFrom  string
	ReceiptName  string
	CurrencyCode string
}
