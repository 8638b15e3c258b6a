package services

import (
	"fmt"
	"math"

	domain "github.com/studiopos/api/internal/domain"
)

// applyRule applies every adjustment on the rule to the cart's matching line
// items and appends a single cart-level ledger entry carrying the rule's total
// effect. It returns that total in cents.
func applyRule(cart *Cart, rule Rule) (int64, error) {
	var total int64
	for _, adj := range rule.Adjustments {
		idxs := matchingItems(cart.Items, adj.Scope)
		if len(idxs) == 0 {
			continue
		}

		var applied int64
		switch adj.Type {
		case domain.AdjustmentPercent:
			applied = applyPercent(cart, rule, adj, idxs)
		case domain.AdjustmentFixed:
			if rule.Mode == domain.RuleModeDiscount {
				applied = applyFixedDiscount(cart, rule, adj, idxs)
			} else {
				applied = applyFixedSurcharge(cart, rule, adj, idxs)
			}
		default:
			return 0, fmt.Errorf("%w: %q on rule %s", ErrAdjustmentUnsupportedType, adj.Type, rule.ID)
		}
		total += applied
	}

	if total > 0 {
		cartLedger(cart, rule.Mode).Append(AdjustmentItem{RuleID: rule.ID, Name: rule.Name, Amount: total})
	}
	return total, nil
}

// applyPercent computes the per-item effect on the surcharge-inflated base and
// rounds to cents per item before appending. MaxAmount is a running cap shared
// across every item the adjustment touches.
func applyPercent(cart *Cart, rule Rule, adj Adjustment, idxs []int) int64 {
	var applied int64
	for _, i := range idxs {
		item := &cart.Items[i]
		base := item.OriginalSubtotal + item.Adjustments.Surcharges.Total
		amount := roundCents(float64(base) * adj.Percent / 100)
		if adj.MaxAmount > 0 {
			remaining := adj.MaxAmount - applied
			if remaining <= 0 {
				break
			}
			if amount > remaining {
				amount = remaining
			}
		}
		if amount <= 0 {
			continue
		}
		applied += amount
		lineLedger(item, rule.Mode).Append(AdjustmentItem{RuleID: rule.ID, Name: rule.Name, Amount: amount})
	}
	return applied
}

// applyFixedDiscount spreads a fixed amount across the matching items in
// proportion to their surcharge-inflated bases. Each item's share caps at its
// own base, and the running remainder guarantees the total never exceeds the
// configured amount.
func applyFixedDiscount(cart *Cart, rule Rule, adj Adjustment, idxs []int) int64 {
	bases := make([]int64, len(idxs))
	var baseTotal int64
	for j, i := range idxs {
		item := cart.Items[i]
		bases[j] = item.OriginalSubtotal + item.Adjustments.Surcharges.Total
		baseTotal += bases[j]
	}
	if baseTotal <= 0 || adj.Amount <= 0 {
		return 0
	}

	remaining := adj.Amount
	var applied int64
	for j, i := range idxs {
		if remaining <= 0 {
			break
		}
		share := roundCents(float64(adj.Amount) * float64(bases[j]) / float64(baseTotal))
		if share > bases[j] {
			share = bases[j]
		}
		if share > remaining {
			share = remaining
		}
		if share <= 0 {
			continue
		}
		remaining -= share
		applied += share
		lineLedger(&cart.Items[i], rule.Mode).Append(AdjustmentItem{RuleID: rule.ID, Name: rule.Name, Amount: share})
	}
	return applied
}

// applyFixedSurcharge splits a fixed amount evenly across the matching items,
// earlier items absorbing the remainder cents.
func applyFixedSurcharge(cart *Cart, rule Rule, adj Adjustment, idxs []int) int64 {
	if adj.Amount <= 0 {
		return 0
	}
	shares := splitEvenly(adj.Amount, len(idxs))
	var applied int64
	for j, i := range idxs {
		if shares[j] <= 0 {
			continue
		}
		applied += shares[j]
		lineLedger(&cart.Items[i], rule.Mode).Append(AdjustmentItem{RuleID: rule.ID, Name: rule.Name, Amount: shares[j]})
	}
	return applied
}

func matchingItems(items []LineItem, scope domain.Applicability) []int {
	idxs := make([]int, 0, len(items))
	for i, item := range items {
		if scope.Matches(item) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func lineLedger(item *LineItem, mode domain.RuleMode) *AdjustmentLedger {
	if mode == domain.RuleModeSurcharge {
		return &item.Adjustments.Surcharges
	}
	return &item.Adjustments.Discounts
}

func cartLedger(cart *Cart, mode domain.RuleMode) *AdjustmentLedger {
	if mode == domain.RuleModeSurcharge {
		return &cart.Adjustments.Surcharges
	}
	return &cart.Adjustments.Discounts
}

// splitEvenly divides amount into n integer shares whose sum equals amount,
// the first shares taking the extra cents.
func splitEvenly(amount int64, n int) []int64 {
	shares := make([]int64, n)
	if n == 0 || amount == 0 {
		return shares
	}
	base := amount / int64(n)
	remainder := amount % int64(n)
	for i := range shares {
		shares[i] = base
		if remainder > 0 {
			shares[i]++
			remainder--
		}
	}
	return shares
}

// roundCents rounds half away from zero to the nearest cent.
func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
