package firestore

import (
	"time"

	domain "github.com/studiopos/api/internal/domain"
)

// Document structs mirror the Firestore layout. Monetary fields are integer
// cents; timestamps are stored as Firestore timestamps.

type adjustmentItemDoc struct {
	RuleID string `firestore:"ruleId"`
	Name   string `firestore:"name"`
	Amount int64  `firestore:"amount"`
	Custom bool   `firestore:"custom"`
}

type applicabilityDoc struct {
	Products   []string `firestore:"products"`
	Categories []string `firestore:"categories"`
}

type adjustmentDoc struct {
	Type      string           `firestore:"type"`
	Percent   float64          `firestore:"percent"`
	Amount    int64            `firestore:"amount"`
	MaxAmount int64            `firestore:"maxAmount"`
	Scope     applicabilityDoc `firestore:"scope"`
}

type mustHaveDoc struct {
	Products   []string `firestore:"products"`
	Categories []string `firestore:"categories"`
}

type frequencyLimitDoc struct {
	Count  int    `firestore:"count"`
	Window string `firestore:"window"`
}

type ruleDoc struct {
	Mode        string             `firestore:"mode"`
	Name        string             `firestore:"name"`
	Code        string             `firestore:"code"`
	CodeFold    string             `firestore:"codeFold"`
	AutoAssign  bool               `firestore:"autoAssign"`
	Start       *time.Time         `firestore:"start"`
	Expiry      *time.Time         `firestore:"expiry"`
	ArchivedAt  *time.Time         `firestore:"archivedAt"`
	DaysOfWeek  map[string]bool    `firestore:"daysOfWeek"`
	Musts       mustHaveDoc        `firestore:"musts"`
	LimitTotal  int                `firestore:"limitTotal"`
	Frequency   *frequencyLimitDoc `firestore:"frequency"`
	Adjustments []adjustmentDoc    `firestore:"adjustments"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

type discountUsageDoc struct {
	DiscountID string    `firestore:"discountId"`
	Amount     int64     `firestore:"amount"`
	Custom     bool      `firestore:"custom"`
	UsedAt     time.Time `firestore:"usedAt"`
}

type creditEntryDoc struct {
	Amount        int64     `firestore:"amount"`
	Note          string    `firestore:"note"`
	TransactionID string    `firestore:"transactionId"`
	Date          time.Time `firestore:"date"`
}

type customerDoc struct {
	FirstName     string             `firestore:"firstName"`
	LastName      string             `firestore:"lastName"`
	Email         string             `firestore:"email"`
	ProcessorRef  string             `firestore:"processorRef"`
	CreditBalance int64              `firestore:"creditBalance"`
	Credits       []creditEntryDoc   `firestore:"credits"`
	Debits        []creditEntryDoc   `firestore:"debits"`
	Discounts     []discountUsageDoc `firestore:"discounts"`
}

type dependentDoc struct {
	ID     string     `firestore:"id"`
	Name   string     `firestore:"name"`
	DOB    *time.Time `firestore:"dob"`
	Gender string     `firestore:"gender"`
}

type membershipDoc struct {
	CustomerID          string        `firestore:"customerId"`
	ProductID           string        `firestore:"productId"`
	PriceID             string        `firestore:"priceId"`
	Unit                string        `firestore:"unit"`
	Amount              int64         `firestore:"amount"`
	NextBillingDate     time.Time     `firestore:"nextBillingDate"`
	SubscriptionEndDate *time.Time    `firestore:"subscriptionEndDate"`
	SubscriptionRef     string        `firestore:"subscriptionRef"`
	Status              string        `firestore:"status"`
	Dependent           *dependentDoc `firestore:"dependent"`
	CreatedAt           time.Time     `firestore:"createdAt"`
}

type ledgerDoc struct {
	Items []adjustmentItemDoc `firestore:"items"`
	Total int64               `firestore:"total"`
}

type cartAdjustmentsDoc struct {
	Discounts     ledgerDoc `firestore:"discounts"`
	Surcharges    ledgerDoc `firestore:"surcharges"`
	Credits       int64     `firestore:"credits"`
	DiscountError string    `firestore:"discountError"`
}

type lineAdjustmentsDoc struct {
	Discounts  ledgerDoc `firestore:"discounts"`
	Surcharges ledgerDoc `firestore:"surcharges"`
}

type membershipPriceDoc struct {
	ID         string `firestore:"id"`
	Amount     int64  `firestore:"amount"`
	Unit       string `firestore:"unit"`
	BillingMax int    `firestore:"billingMax"`
}

type transactionLineDoc struct {
	ProductID        string              `firestore:"productId"`
	CategoryID       string              `firestore:"categoryId"`
	Name             string              `firestore:"name"`
	Type             string              `firestore:"type"`
	Quantity         int                 `firestore:"quantity"`
	OriginalSubtotal int64               `firestore:"originalSubtotal"`
	AdjustedSubtotal int64               `firestore:"adjustedSubtotal"`
	Tax              int64               `firestore:"tax"`
	Total            int64               `firestore:"total"`
	TrackStock       bool                `firestore:"trackStock"`
	Participants     []string            `firestore:"participants"`
	Price            *membershipPriceDoc `firestore:"price"`
	Dependent        *dependentDoc       `firestore:"dependent"`
	Adjustments      lineAdjustmentsDoc  `firestore:"adjustments"`
}

type transactionDoc struct {
	CustomerID    string               `firestore:"customerId"`
	EmployeeID    string               `firestore:"employeeId"`
	Subtotal      int64                `firestore:"subtotal"`
	Tax           int64                `firestore:"tax"`
	Total         int64                `firestore:"total"`
	Adjustments   cartAdjustmentsDoc   `firestore:"adjustments"`
	Lines         []transactionLineDoc `firestore:"lines"`
	PaymentMethod string               `firestore:"paymentMethod"`
	ProcessorRef  string               `firestore:"processorRef"`
	Status        string               `firestore:"status"`
	CreatedAt     time.Time            `firestore:"createdAt"`
}

type productDoc struct {
	Name       string `firestore:"name"`
	CategoryID string `firestore:"categoryId"`
	Type       string `firestore:"type"`
	TrackStock bool   `firestore:"trackStock"`
	Stock      int64  `firestore:"stock"`
}

type orgSettingsDoc struct {
	Timezone     string `firestore:"timezone"`
	AutoReceipt  bool   `firestore:"autoReceipt"`
	ReceiptFrom  string `firestore:"receiptFrom"`
	ReceiptName  string `firestore:"receiptName"`
	CurrencyCode string `firestore:"currencyCode"`
}

// Mappers ---------------------------------------------------------------

func ruleFromDoc(id, orgID string, doc ruleDoc) domain.Rule {
	rule := domain.Rule{
		ID:         id,
		OrgID:      orgID,
		Mode:       domain.RuleMode(doc.Mode),
		Name:       doc.Name,
		Code:       doc.Code,
		AutoAssign: doc.AutoAssign,
		Start:      doc.Start,
		Expiry:     doc.Expiry,
		ArchivedAt: doc.ArchivedAt,
		DaysOfWeek: doc.DaysOfWeek,
		Musts: domain.MustHave{
			Products:   doc.Musts.Products,
			Categories: doc.Musts.Categories,
		},
		Limits:    domain.UsageLimits{Total: doc.LimitTotal},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if doc.Frequency != nil {
		rule.Limits.Frequency = &domain.FrequencyLimit{
			Count:  doc.Frequency.Count,
			Window: domain.FrequencyWindow(doc.Frequency.Window),
		}
	}
	for _, adj := range doc.Adjustments {
		rule.Adjustments = append(rule.Adjustments, domain.Adjustment{
			Type:      domain.AdjustmentType(adj.Type),
			Percent:   adj.Percent,
			Amount:    adj.Amount,
			MaxAmount: adj.MaxAmount,
			Scope: domain.Applicability{
				Products:   adj.Scope.Products,
				Categories: adj.Scope.Categories,
			},
		})
	}
	return rule
}

func customerFromDoc(id, orgID string, doc customerDoc) domain.Customer {
	customer := domain.Customer{
		ID:           id,
		OrgID:        orgID,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Email:        doc.Email,
		ProcessorRef: doc.ProcessorRef,
		Credits: domain.CreditLedger{
			Balance: doc.CreditBalance,
		},
	}
	for _, entry := range doc.Credits {
		customer.Credits.Credits = append(customer.Credits.Credits, creditEntryFromDoc(entry))
	}
	for _, entry := range doc.Debits {
		customer.Credits.Debits = append(customer.Credits.Debits, creditEntryFromDoc(entry))
	}
	for _, usage := range doc.Discounts {
		customer.Discounts = append(customer.Discounts, domain.DiscountUsage{
			DiscountID: usage.DiscountID,
			Amount:     usage.Amount,
			Custom:     usage.Custom,
			UsedAt:     usage.UsedAt,
		})
	}
	return customer
}

func creditEntryFromDoc(doc creditEntryDoc) domain.CreditEntry {
	return domain.CreditEntry{
		Amount:        doc.Amount,
		Note:          doc.Note,
		TransactionID: doc.TransactionID,
		Date:          doc.Date,
	}
}

func membershipFromDoc(id, orgID string, doc membershipDoc) domain.Membership {
	membership := domain.Membership{
		ID:                  id,
		OrgID:               orgID,
		CustomerID:          doc.CustomerID,
		ProductID:           doc.ProductID,
		PriceID:             doc.PriceID,
		Unit:                domain.BillingUnit(doc.Unit),
		Amount:              doc.Amount,
		NextBillingDate:     doc.NextBillingDate,
		SubscriptionEndDate: doc.SubscriptionEndDate,
		SubscriptionRef:     doc.SubscriptionRef,
		Status:              domain.MembershipStatus(doc.Status),
		CreatedAt:           doc.CreatedAt,
	}
	if doc.Dependent != nil {
		membership.Dependent = dependentFromDoc(doc.Dependent)
	}
	return membership
}

func membershipToDoc(membership domain.Membership) membershipDoc {
	doc := membershipDoc{
		CustomerID:          membership.CustomerID,
		ProductID:           membership.ProductID,
		PriceID:             membership.PriceID,
		Unit:                string(membership.Unit),
		Amount:              membership.Amount,
		NextBillingDate:     membership.NextBillingDate,
		SubscriptionEndDate: membership.SubscriptionEndDate,
		SubscriptionRef:     membership.SubscriptionRef,
		Status:              string(membership.Status),
		CreatedAt:           membership.CreatedAt,
	}
	if membership.Dependent != nil {
		doc.Dependent = dependentToDoc(membership.Dependent)
	}
	return doc
}

func dependentFromDoc(doc *dependentDoc) *domain.Dependent {
	if doc == nil {
		return nil
	}
	return &domain.Dependent{ID: doc.ID, Name: doc.Name, DOB: doc.DOB, Gender: doc.Gender}
}

func dependentToDoc(dep *domain.Dependent) *dependentDoc {
	if dep == nil {
		return nil
	}
	return &dependentDoc{ID: dep.ID, Name: dep.Name, DOB: dep.DOB, Gender: dep.Gender}
}

func ledgerToDoc(ledger domain.AdjustmentLedger) ledgerDoc {
	doc := ledgerDoc{Total: ledger.Total}
	for _, item := range ledger.Items {
		doc.Items = append(doc.Items, adjustmentItemDoc{
			RuleID: item.RuleID,
			Name:   item.Name,
			Amount: item.Amount,
			Custom: item.Custom,
		})
	}
	return doc
}

func ledgerFromDoc(doc ledgerDoc) domain.AdjustmentLedger {
	ledger := domain.AdjustmentLedger{Total: doc.Total}
	for _, item := range doc.Items {
		ledger.Items = append(ledger.Items, domain.AdjustmentItem{
			RuleID: item.RuleID,
			Name:   item.Name,
			Amount: item.Amount,
			Custom: item.Custom,
		})
	}
	return ledger
}

func transactionToDoc(txn domain.Transaction) transactionDoc {
	doc := transactionDoc{
		CustomerID: txn.CustomerID,
		EmployeeID: txn.EmployeeID,
		Subtotal:   txn.Subtotal,
		Tax:        txn.Tax,
		Total:      txn.Total,
		Adjustments: cartAdjustmentsDoc{
			Discounts:     ledgerToDoc(txn.Adjustments.Discounts),
			Surcharges:    ledgerToDoc(txn.Adjustments.Surcharges),
			Credits:       txn.Adjustments.Credits,
			DiscountError: txn.Adjustments.DiscountError,
		},
		PaymentMethod: string(txn.PaymentMethod),
		ProcessorRef:  txn.ProcessorRef,
		Status:        string(txn.Status),
		CreatedAt:     txn.CreatedAt,
	}
	for _, line := range txn.Lines {
		lineDoc := transactionLineDoc{
			ProductID:        line.ProductID,
			CategoryID:       line.CategoryID,
			Name:             line.Name,
			Type:             string(line.Type),
			Quantity:         line.Quantity,
			OriginalSubtotal: line.OriginalSubtotal,
			AdjustedSubtotal: line.AdjustedSubtotal,
			Tax:              line.Tax,
			Total:            line.Total,
			TrackStock:       line.TrackStock,
			Participants:     line.Participants,
			Dependent:        dependentToDoc(line.Dependent),
			Adjustments: lineAdjustmentsDoc{
				Discounts:  ledgerToDoc(line.Adjustments.Discounts),
				Surcharges: ledgerToDoc(line.Adjustments.Surcharges),
			},
		}
		if line.Price != nil {
			lineDoc.Price = &membershipPriceDoc{
				ID:         line.Price.ID,
				Amount:     line.Price.Amount,
				Unit:       string(line.Price.Unit),
				BillingMax: line.Price.BillingMax,
			}
		}
		doc.Lines = append(doc.Lines, lineDoc)
	}
	return doc
}

func transactionFromDoc(id, orgID string, doc transactionDoc) domain.Transaction {
	txn := domain.Transaction{
		ID:         id,
		OrgID:      orgID,
		CustomerID: doc.CustomerID,
		EmployeeID: doc.EmployeeID,
		Subtotal:   doc.Subtotal,
		Tax:        doc.Tax,
		Total:      doc.Total,
		Adjustments: domain.CartAdjustments{
			Discounts:     ledgerFromDoc(doc.Adjustments.Discounts),
			Surcharges:    ledgerFromDoc(doc.Adjustments.Surcharges),
			Credits:       doc.Adjustments.Credits,
			DiscountError: doc.Adjustments.DiscountError,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		ProcessorRef:  doc.ProcessorRef,
		Status:        domain.TransactionStatus(doc.Status),
		CreatedAt:     doc.CreatedAt,
	}
	for _, lineDoc := range doc.Lines {
		line := domain.TransactionLine{
			ProductID:        lineDoc.ProductID,
			CategoryID:       lineDoc.CategoryID,
			Name:             lineDoc.Name,
			Type:             domain.ProductType(lineDoc.Type),
			Quantity:         lineDoc.Quantity,
			OriginalSubtotal: lineDoc.OriginalSubtotal,
			AdjustedSubtotal: lineDoc.AdjustedSubtotal,
			Tax:              lineDoc.Tax,
			Total:            lineDoc.Total,
			TrackStock:       lineDoc.TrackStock,
			Participants:     lineDoc.Participants,
			Dependent:        dependentFromDoc(lineDoc.Dependent),
			Adjustments: domain.LineAdjustments{
				Discounts:  ledgerFromDoc(lineDoc.Adjustments.Discounts),
				Surcharges: ledgerFromDoc(lineDoc.Adjustments.Surcharges),
			},
		}
		if lineDoc.Price != nil {
			line.Price = &domain.MembershipPrice{
				ID:         lineDoc.Price.ID,
				Amount:     lineDoc.Price.Amount,
				Unit:       domain.BillingUnit(lineDoc.Price.Unit),
				BillingMax: lineDoc.Price.BillingMax,
			}
		}
		txn.Lines = append(txn.Lines, line)
	}
	return txn
}
