package services

import (
	"context"
	"fmt"
	"time"

	domain "github.com/studiopos/api/internal/domain"
)

// validateSurcharge runs the gates that apply to surcharges: the day-of-week
// gate and applicability. An empty return means the rule may apply.
func validateSurcharge(rule Rule, cart Cart, now time.Time, loc *time.Location) string {
	localDay := now.In(loc).Weekday()
	if !rule.AllowsDay(localDay) {
		return fmt.Sprintf("This surcharge is not valid on %ss", localDay)
	}
	if !ruleTouchesCart(rule, cart) {
		return "This surcharge does not apply to any items in this cart"
	}
	return ""
}

// validateDiscount runs the full eligibility chain for a discount and returns
// a register-friendly rejection message, or "" when the discount may apply.
// Gates short-circuit in order: day of week, must-have products, applicability,
// usage limits. Infrastructure failures come back as the error.
func (e *AdjustmentEngine) validateDiscount(ctx context.Context, rule Rule, cart Cart, customer *Customer, now time.Time, loc *time.Location) (string, error) {
	localDay := now.In(loc).Weekday()
	if !rule.AllowsDay(localDay) {
		return fmt.Sprintf("This discount is not valid on %ss", localDay), nil
	}

	if !rule.Musts.Empty() {
		ok, err := e.hasMustHave(ctx, rule, cart, customer, now)
		if err != nil {
			return "", err
		}
		if !ok {
			return "This discount requires a qualifying product or an active membership", nil
		}
	}

	if !ruleTouchesCart(rule, cart) {
		return "This discount does not apply to any items in this cart", nil
	}

	if customer != nil {
		if message := checkUsageLimits(rule, *customer, now, loc); message != "" {
			return message, nil
		}
	}

	return "", nil
}

// hasMustHave checks the must-have gate: the cart contains a line item whose
// product id or category id satisfies the requirement, or the customer holds
// an active membership for one of the required products. Memberships reference
// products, so category requirements have no membership fallback.
func (e *AdjustmentEngine) hasMustHave(ctx context.Context, rule Rule, cart Cart, customer *Customer, now time.Time) (bool, error) {
	for _, item := range cart.Items {
		if rule.Musts.MatchesItem(item) {
			return true, nil
		}
	}

	if customer == nil || len(rule.Musts.Products) == 0 {
		return false, nil
	}
	required := make(map[string]bool, len(rule.Musts.Products))
	for _, id := range rule.Musts.Products {
		if id != "" {
			required[id] = true
		}
	}
	memberships, err := e.memberships.FindActive(ctx, cart.OrgID, customer.ID, now)
	if err != nil {
		return false, err
	}
	for _, membership := range memberships {
		if membership.Status == domain.MembershipStatusCancelled {
			continue
		}
		if !membership.NextBillingDate.After(now) {
			continue
		}
		if required[membership.ProductID] {
			return true, nil
		}
	}
	return false, nil
}

// ruleTouchesCart reports whether at least one adjustment on the rule resolves
// to at least one line item.
func ruleTouchesCart(rule Rule, cart Cart) bool {
	for _, adj := range rule.Adjustments {
		for _, item := range cart.Items {
			if adj.Scope.Matches(item) {
				return true
			}
		}
	}
	return false
}

// checkUsageLimits enforces the per-customer lifetime cap and the calendar
// frequency window against the customer's discount history.
func checkUsageLimits(rule Rule, customer Customer, now time.Time, loc *time.Location) string {
	var lifetime int
	for _, usage := range customer.Discounts {
		if usage.DiscountID == rule.ID {
			lifetime++
		}
	}

	if rule.Limits.Total > 0 && lifetime >= rule.Limits.Total {
		return fmt.Sprintf("This discount can only be used %s per customer", countPhrase(rule.Limits.Total))
	}

	freq := rule.Limits.Frequency
	if freq == nil || freq.Count <= 0 {
		return ""
	}

	start := windowStart(now, freq.Window, loc)
	var inWindow int
	for _, usage := range customer.Discounts {
		if usage.DiscountID != rule.ID {
			continue
		}
		if !usage.UsedAt.Before(start) {
			inWindow++
		}
	}
	if inWindow >= freq.Count {
		return fmt.Sprintf("This discount can only be used %s per %s", countPhrase(freq.Count), freq.Window)
	}
	return ""
}

// windowStart returns the start of the calendar window containing now, in the
// org's timezone. Weeks start on the most recent Sunday at midnight.
func windowStart(now time.Time, window domain.FrequencyWindow, loc *time.Location) time.Time {
	local := now.In(loc)
	year, month, day := local.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, loc)

	switch window {
	case domain.WindowDay:
		return midnight
	case domain.WindowWeek:
		return midnight.AddDate(0, 0, -int(midnight.Weekday()))
	case domain.WindowMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case domain.WindowYear:
		return time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return midnight
	}
}

func countPhrase(n int) string {
	if n == 1 {
		return "1 time"
	}
	return fmt.Sprintf("%d times", n)
}
