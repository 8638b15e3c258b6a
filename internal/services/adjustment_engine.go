package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/repositories"
)

// taxRate is the flat rate applied to adjusted subtotals.
const taxRate = 0.10

// AdjustmentEngine prices carts: it applies every eligible surcharge, at most
// one discount, and recomputes line and cart totals. Business-rule rejections
// land in cart.Adjustments.DiscountError; only infrastructure failures come
// back as errors.
type AdjustmentEngine struct {
	rules       *RuleService
	memberships repositories.MembershipRepository
	orgSettings repositories.OrgSettingsRepository
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
}

type AdjustmentEngineDeps struct {
	Rules       *RuleService
	Memberships repositories.MembershipRepository
	OrgSettings repositories.OrgSettingsRepository
	Now         func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

func NewAdjustmentEngine(deps AdjustmentEngineDeps) (*AdjustmentEngine, error) {
	if deps.Rules == nil {
		return nil, errors.New("adjustment engine: rule service is required")
	}
	if deps.Memberships == nil {
		return nil, errors.New("adjustment engine: membership repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AdjustmentEngine{
		rules:       deps.Rules,
		memberships: deps.Memberships,
		orgSettings: deps.OrgSettings,
		now:         func() time.Time { return now().UTC() },
		logger:      logger,
	}, nil
}

type CalculateAdjustmentsCommand struct {
	Cart         Cart
	Customer     *Customer
	DiscountCode string
	DiscountID   string
}

// CalculateAdjustments returns a fully repriced copy of the cart. The input
// cart is never mutated. Surcharges apply unconditionally; at most one
// discount applies, resolved by code first, then by id.
func (e *AdjustmentEngine) CalculateAdjustments(ctx context.Context, cmd CalculateAdjustmentsCommand) (Cart, error) {
	if err := validateCartInput(cmd.Cart); err != nil {
		return Cart{}, err
	}

	cart := cmd.Cart.Clone()
	resetAdjustments(&cart)

	now := e.now()
	loc, err := e.location(ctx, cart.OrgID)
	if err != nil {
		return Cart{}, err
	}

	if err := e.applySurcharges(ctx, &cart, now, loc); err != nil {
		return Cart{}, err
	}

	rule, lookupMessage, err := e.resolveDiscount(ctx, cart.OrgID, cmd.DiscountCode, cmd.DiscountID)
	if err != nil {
		return Cart{}, err
	}
	if lookupMessage != "" {
		cart.Adjustments.DiscountError = lookupMessage
	}
	if rule != nil {
		message, err := e.validateDiscount(ctx, *rule, cart, cmd.Customer, now, loc)
		if err != nil {
			return Cart{}, err
		}
		if message != "" {
			cart.Adjustments.DiscountError = message
			e.logger(ctx, "discount_rejected", map[string]any{"orgId": cart.OrgID, "ruleId": rule.ID, "message": message})
		} else {
			applied, err := applyRule(&cart, *rule)
			if err != nil {
				return Cart{}, err
			}
			if applied == 0 {
				// A validated discount that moves nothing must still be reported.
				cart.Adjustments.DiscountError = "This discount does not apply to any items in this cart"
				e.logger(ctx, "discount_rejected", map[string]any{"orgId": cart.OrgID, "ruleId": rule.ID, "message": cart.Adjustments.DiscountError})
			} else {
				e.logger(ctx, "discount_applied", map[string]any{"orgId": cart.OrgID, "ruleId": rule.ID, "amount": applied})
			}
		}
	}

	recomputeTotals(&cart)
	return cart, nil
}

type FindBestAutoDiscountCommand struct {
	Cart     Cart
	Customer *Customer
}

// FindBestAutoDiscount simulates every valid auto-assign discount against the
// cart and returns the rule with the largest saving, or nil when no customer
// is attached or nothing qualifies. Ties keep the first candidate.
func (e *AdjustmentEngine) FindBestAutoDiscount(ctx context.Context, cmd FindBestAutoDiscountCommand) (*Rule, error) {
	if cmd.Customer == nil {
		return nil, nil
	}
	if err := validateCartInput(cmd.Cart); err != nil {
		return nil, err
	}

	candidates, err := e.rules.ListAutoDiscounts(ctx, cmd.Cart.OrgID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	now := e.now()
	loc, err := e.location(ctx, cmd.Cart.OrgID)
	if err != nil {
		return nil, err
	}

	// Surcharges inflate percent bases, so the simulation baseline carries them.
	base := cmd.Cart.Clone()
	resetAdjustments(&base)
	if err := e.applySurcharges(ctx, &base, now, loc); err != nil {
		return nil, err
	}

	var (
		best       *Rule
		bestSaving int64
	)
	for i := range candidates {
		rule := candidates[i]
		message, err := e.validateDiscount(ctx, rule, base, cmd.Customer, now, loc)
		if err != nil {
			return nil, err
		}
		if message != "" {
			continue
		}
		sim := base.Clone()
		saving, err := applyRule(&sim, rule)
		if err != nil {
			return nil, err
		}
		if saving > bestSaving {
			bestSaving = saving
			best = &candidates[i]
		}
	}

	if best != nil {
		e.logger(ctx, "auto_discount_selected", map[string]any{"orgId": cmd.Cart.OrgID, "ruleId": best.ID, "saving": bestSaving})
	}
	return best, nil
}

func (e *AdjustmentEngine) applySurcharges(ctx context.Context, cart *Cart, now time.Time, loc *time.Location) error {
	surcharges, err := e.rules.ListActiveSurcharges(ctx, cart.OrgID)
	if err != nil {
		return err
	}
	for _, rule := range surcharges {
		if message := validateSurcharge(rule, *cart, now, loc); message != "" {
			continue
		}
		applied, err := applyRule(cart, rule)
		if err != nil {
			return err
		}
		if applied != 0 {
			e.logger(ctx, "surcharge_applied", map[string]any{"orgId": cart.OrgID, "ruleId": rule.ID, "amount": applied})
		}
	}
	return nil
}

// resolveDiscount picks the discount to attempt: explicit code wins over id.
// Lookup misses return a message instead of a rule; infrastructure failures
// return an error.
func (e *AdjustmentEngine) resolveDiscount(ctx context.Context, orgID, code, ruleID string) (*Rule, string, error) {
	var (
		rule Rule
		err  error
	)
	switch {
	case strings.TrimSpace(code) != "":
		rule, err = e.rules.LookupDiscountByCode(ctx, orgID, code)
	case strings.TrimSpace(ruleID) != "":
		rule, err = e.rules.LookupDiscountByID(ctx, orgID, ruleID)
	default:
		return nil, "", nil
	}
	if err != nil {
		var miss *DiscountLookupError
		if errors.As(err, &miss) {
			return nil, miss.Message, nil
		}
		return nil, "", err
	}
	return &rule, "", nil
}

// location resolves the org's timezone for calendar-sensitive gates. A missing
// settings document falls back to UTC; an unreachable store is an error.
func (e *AdjustmentEngine) location(ctx context.Context, orgID string) (*time.Location, error) {
	if e.orgSettings == nil {
		return time.UTC, nil
	}
	settings, err := e.orgSettings.Get(ctx, orgID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return time.UTC, nil
		}
		return nil, err
	}
	if strings.TrimSpace(settings.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		e.logger(ctx, "org_timezone_invalid", map[string]any{"orgId": orgID, "timezone": settings.Timezone})
		return time.UTC, nil
	}
	return loc, nil
}

func validateCartInput(cart Cart) error {
	if strings.TrimSpace(cart.OrgID) == "" {
		return fmt.Errorf("%w: org id is required", ErrAdjustmentInvalidInput)
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be positive", ErrAdjustmentInvalidInput, item.ID)
		}
		if item.OriginalSubtotal < 0 {
			return fmt.Errorf("%w: item %s subtotal cannot be negative", ErrAdjustmentInvalidInput, item.ID)
		}
	}
	return nil
}

// resetAdjustments clears every ledger so recalculation always starts from the
// original subtotals.
func resetAdjustments(cart *Cart) {
	cart.Adjustments.Discounts = AdjustmentLedger{}
	cart.Adjustments.Surcharges = AdjustmentLedger{}
	cart.Adjustments.DiscountError = ""
	for i := range cart.Items {
		cart.Items[i].Adjustments = domain.LineAdjustments{}
	}
}

// recomputeTotals derives line and cart totals from the ledgers. Line and cart
// subtotals floor at zero; totals are sums of line values.
func recomputeTotals(cart *Cart) {
	var subtotal, tax, total int64
	for i := range cart.Items {
		item := &cart.Items[i]
		adjusted := item.OriginalSubtotal + item.Adjustments.Surcharges.Total - item.Adjustments.Discounts.Total
		if adjusted < 0 {
			adjusted = 0
		}
		item.AdjustedSubtotal = adjusted
		item.Tax = roundCents(float64(adjusted) * taxRate)
		item.Total = adjusted + item.Tax

		subtotal += item.AdjustedSubtotal
		tax += item.Tax
		total += item.Total
	}
	cart.Subtotal = subtotal
	cart.Tax = tax
	cart.Total = total
}
