package handlers

import (
	"strings"
	"time"

	domain "github.com/studiopos/api/internal/domain"
)

// Wire payloads for carts and transactions. Monetary values are integer cents
// throughout; the engine owns all derivation, so requests only carry the
// original subtotals.

type cartPayload struct {
	ID          string                 `json:"id,omitempty"`
	OrgID       string                 `json:"orgId"`
	CustomerID  string                 `json:"customerId,omitempty"`
	Items       []lineItemPayload      `json:"items"`
	Subtotal    int64                  `json:"subtotal"`
	Tax         int64                  `json:"tax"`
	Total       int64                  `json:"total"`
	Adjustments cartAdjustmentsPayload `json:"adjustments"`
}

type lineItemPayload struct {
	ID               string                 `json:"id,omitempty"`
	ProductID        string                 `json:"productId"`
	CategoryID       string                 `json:"categoryId,omitempty"`
	Name             string                 `json:"name,omitempty"`
	Type             string                 `json:"type"`
	Quantity         int                    `json:"quantity"`
	OriginalSubtotal int64                  `json:"originalSubtotal"`
	AdjustedSubtotal int64                  `json:"adjustedSubtotal"`
	Tax              int64                  `json:"tax"`
	Total            int64                  `json:"total"`
	TrackStock       bool                   `json:"trackStock,omitempty"`
	Participants     []string               `json:"participants,omitempty"`
	Price            *membershipPricePayload `json:"price,omitempty"`
	Dependent        *dependentPayload      `json:"dependent,omitempty"`
	Adjustments      lineAdjustmentsPayload `json:"adjustments"`
}

type membershipPricePayload struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Unit       string `json:"unit"`
	BillingMax int    `json:"billingMax,omitempty"`
}

type dependentPayload struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	DOB    string `json:"dob,omitempty"`
	Gender string `json:"gender,omitempty"`
}

type adjustmentItemPayload struct {
	RuleID string `json:"ruleId,omitempty"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
	Custom bool   `json:"custom,omitempty"`
}

type adjustmentLedgerPayload struct {
	Items []adjustmentItemPayload `json:"items"`
	Total int64                   `json:"total"`
}

type lineAdjustmentsPayload struct {
	Discounts  adjustmentLedgerPayload `json:"discounts"`
	Surcharges adjustmentLedgerPayload `json:"surcharges"`
}

type cartAdjustmentsPayload struct {
	Discounts     adjustmentLedgerPayload `json:"discounts"`
	Surcharges    adjustmentLedgerPayload `json:"surcharges"`
	Credits       int64                   `json:"credits,omitempty"`
	DiscountError string                  `json:"discountError,omitempty"`
}

type transactionLinePayload struct {
	ProductID        string                  `json:"productId"`
	CategoryID       string                  `json:"categoryId,omitempty"`
	Name             string                  `json:"name,omitempty"`
	Type             string                  `json:"type"`
	Quantity         int                     `json:"quantity"`
	OriginalSubtotal int64                   `json:"originalSubtotal"`
	AdjustedSubtotal int64                   `json:"adjustedSubtotal"`
	Tax              int64                   `json:"tax"`
	Total            int64                   `json:"total"`
	TrackStock       bool                    `json:"trackStock,omitempty"`
	Participants     []string                `json:"participants,omitempty"`
	Price            *membershipPricePayload `json:"price,omitempty"`
	Dependent        *dependentPayload       `json:"dependent,omitempty"`
	Adjustments      lineAdjustmentsPayload  `json:"adjustments"`
}

type transactionPayload struct {
	ID            string                   `json:"id"`
	OrgID         string                   `json:"orgId"`
	CustomerID    string                   `json:"customerId,omitempty"`
	EmployeeID    string                   `json:"employeeId,omitempty"`
	Subtotal      int64                    `json:"subtotal"`
	Tax           int64                    `json:"tax"`
	Total         int64                    `json:"total"`
	Adjustments   cartAdjustmentsPayload   `json:"adjustments"`
	Lines         []transactionLinePayload `json:"lines"`
	PaymentMethod string                   `json:"paymentMethod"`
	ProcessorRef  string                   `json:"processorRef,omitempty"`
	Status        string                   `json:"status"`
	CreatedAt     string                   `json:"createdAt"`
}

type rulePayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code,omitempty"`
	Mode       string `json:"mode"`
	AutoAssign bool   `json:"autoAssign,omitempty"`
}

func cartFromPayload(p cartPayload) domain.Cart {
	cart := domain.Cart{
		ID:         strings.TrimSpace(p.ID),
		OrgID:      strings.TrimSpace(p.OrgID),
		CustomerID: strings.TrimSpace(p.CustomerID),
		Subtotal:   p.Subtotal,
		Tax:        p.Tax,
		Total:      p.Total,
	}
	cart.Adjustments.Credits = p.Adjustments.Credits
	if len(p.Items) > 0 {
		cart.Items = make([]domain.LineItem, 0, len(p.Items))
		for _, item := range p.Items {
			cart.Items = append(cart.Items, lineItemFromPayload(item))
		}
	}
	return cart
}

func lineItemFromPayload(p lineItemPayload) domain.LineItem {
	item := domain.LineItem{
		ID:               strings.TrimSpace(p.ID),
		ProductID:        strings.TrimSpace(p.ProductID),
		CategoryID:       strings.TrimSpace(p.CategoryID),
		Name:             strings.TrimSpace(p.Name),
		Type:             domain.ProductType(strings.TrimSpace(p.Type)),
		Quantity:         p.Quantity,
		OriginalSubtotal: p.OriginalSubtotal,
		AdjustedSubtotal: p.AdjustedSubtotal,
		Tax:              p.Tax,
		Total:            p.Total,
		TrackStock:       p.TrackStock,
	}
	if len(p.Participants) > 0 {
		item.Participants = make([]string, len(p.Participants))
		copy(item.Participants, p.Participants)
	}
	if p.Price != nil {
		item.Price = &domain.MembershipPrice{
			ID:         strings.TrimSpace(p.Price.ID),
			Amount:     p.Price.Amount,
			Unit:       domain.BillingUnit(strings.TrimSpace(p.Price.Unit)),
			BillingMax: p.Price.BillingMax,
		}
	}
	if p.Dependent != nil {
		dep := domain.Dependent{
			ID:     strings.TrimSpace(p.Dependent.ID),
			Name:   strings.TrimSpace(p.Dependent.Name),
			Gender: strings.TrimSpace(p.Dependent.Gender),
		}
		if raw := strings.TrimSpace(p.Dependent.DOB); raw != "" {
			if dob, err := time.Parse(time.RFC3339, raw); err == nil {
				dob = dob.UTC()
				dep.DOB = &dob
			}
		}
		item.Dependent = &dep
	}
	return item
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		ID:          cart.ID,
		OrgID:       cart.OrgID,
		CustomerID:  cart.CustomerID,
		Subtotal:    cart.Subtotal,
		Tax:         cart.Tax,
		Total:       cart.Total,
		Adjustments: buildCartAdjustmentsPayload(cart.Adjustments),
		Items:       make([]lineItemPayload, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, buildLineItemPayload(item))
	}
	return payload
}

func buildLineItemPayload(item domain.LineItem) lineItemPayload {
	p := lineItemPayload{
		ID:               item.ID,
		ProductID:        item.ProductID,
		CategoryID:       item.CategoryID,
		Name:             item.Name,
		Type:             string(item.Type),
		Quantity:         item.Quantity,
		OriginalSubtotal: item.OriginalSubtotal,
		AdjustedSubtotal: item.AdjustedSubtotal,
		Tax:              item.Tax,
		Total:            item.Total,
		TrackStock:       item.TrackStock,
		Adjustments: lineAdjustmentsPayload{
			Discounts:  buildLedgerPayload(item.Adjustments.Discounts),
			Surcharges: buildLedgerPayload(item.Adjustments.Surcharges),
		},
	}
	if len(item.Participants) > 0 {
		p.Participants = make([]string, len(item.Participants))
		copy(p.Participants, item.Participants)
	}
	if item.Price != nil {
		p.Price = &membershipPricePayload{
			ID:         item.Price.ID,
			Amount:     item.Price.Amount,
			Unit:       string(item.Price.Unit),
			BillingMax: item.Price.BillingMax,
		}
	}
	if item.Dependent != nil {
		p.Dependent = buildDependentPayload(item.Dependent)
	}
	return p
}

func buildDependentPayload(dep *domain.Dependent) *dependentPayload {
	p := &dependentPayload{
		ID:     dep.ID,
		Name:   dep.Name,
		Gender: dep.Gender,
	}
	if dep.DOB != nil && !dep.DOB.IsZero() {
		p.DOB = dep.DOB.UTC().Format(time.RFC3339)
	}
	return p
}

func buildLedgerPayload(ledger domain.AdjustmentLedger) adjustmentLedgerPayload {
	p := adjustmentLedgerPayload{
		Items: make([]adjustmentItemPayload, 0, len(ledger.Items)),
		Total: ledger.Total,
	}
	for _, item := range ledger.Items {
		p.Items = append(p.Items, adjustmentItemPayload{
			RuleID: item.RuleID,
			Name:   item.Name,
			Amount: item.Amount,
			Custom: item.Custom,
		})
	}
	return p
}

func buildCartAdjustmentsPayload(adj domain.CartAdjustments) cartAdjustmentsPayload {
	return cartAdjustmentsPayload{
		Discounts:     buildLedgerPayload(adj.Discounts),
		Surcharges:    buildLedgerPayload(adj.Surcharges),
		Credits:       adj.Credits,
		DiscountError: adj.DiscountError,
	}
}

func buildTransactionPayload(txn domain.Transaction) transactionPayload {
	payload := transactionPayload{
		ID:            txn.ID,
		OrgID:         txn.OrgID,
		CustomerID:    txn.CustomerID,
		EmployeeID:    txn.EmployeeID,
		Subtotal:      txn.Subtotal,
		Tax:           txn.Tax,
		Total:         txn.Total,
		Adjustments:   buildCartAdjustmentsPayload(txn.Adjustments),
		Lines:         make([]transactionLinePayload, 0, len(txn.Lines)),
		PaymentMethod: string(txn.PaymentMethod),
		ProcessorRef:  txn.ProcessorRef,
		Status:        string(txn.Status),
		CreatedAt:     formatTime(txn.CreatedAt),
	}
	for _, line := range txn.Lines {
		payload.Lines = append(payload.Lines, buildTransactionLinePayload(line))
	}
	return payload
}

func buildTransactionLinePayload(line domain.TransactionLine) transactionLinePayload {
	p := transactionLinePayload{
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
		Adjustments: lineAdjustmentsPayload{
			Discounts:  buildLedgerPayload(line.Adjustments.Discounts),
			Surcharges: buildLedgerPayload(line.Adjustments.Surcharges),
		},
	}
	if len(line.Participants) > 0 {
		p.Participants = make([]string, len(line.Participants))
		copy(p.Participants, line.Participants)
	}
	if line.Price != nil {
		p.Price = &membershipPricePayload{
			ID:         line.Price.ID,
			Amount:     line.Price.Amount,
			Unit:       string(line.Price.Unit),
			BillingMax: line.Price.BillingMax,
		}
	}
	if line.Dependent != nil {
		p.Dependent = buildDependentPayload(line.Dependent)
	}
	return p
}

func buildRulePayload(rule domain.Rule) rulePayload {
	return rulePayload{
		ID:         rule.ID,
		Name:       rule.Name,
		Code:       rule.Code,
		Mode:       string(rule.Mode),
		AutoAssign: rule.AutoAssign,
	}
}
