package domain

import "time"

// RuleMode separates discounts from surcharges. A rule is exactly one of the
// two; lookups in the wrong mode fail with a structured reason.
type RuleMode string

const (
	RuleModeDiscount  RuleMode = "discount"
	RuleModeSurcharge RuleMode = "surcharge"
)

// AdjustmentType discriminates the two supported adjustment computations.
type AdjustmentType string

const (
	AdjustmentPercent AdjustmentType = "percent"
	AdjustmentFixed   AdjustmentType = "fixed"
)

// FrequencyWindow names a calendar-boundary usage window.
type FrequencyWindow string

const (
	WindowDay   FrequencyWindow = "day"
	WindowWeek  FrequencyWindow = "week"
	WindowMonth FrequencyWindow = "month"
	WindowYear  FrequencyWindow = "year"
)

// Applicability scopes an adjustment to products. Empty Products and
// Categories means the whole catalog; otherwise a line item matches when its
// product id or category id appears.
type Applicability struct {
	Products   []string
	Categories []string
}

// Matches reports whether the line item falls within scope.
func (a Applicability) Matches(item LineItem) bool {
	if len(a.Products) == 0 && len(a.Categories) == 0 {
		return true
	}
	for _, id := range a.Products {
		if id != "" && id == item.ProductID {
			return true
		}
	}
	for _, id := range a.Categories {
		if id != "" && id == item.CategoryID {
			return true
		}
	}
	return false
}

// MustHave lists product and category ids, at least one of which has to be
// satisfied before a discount applies. Empty on both sides means the rule
// carries no requirement.
type MustHave struct {
	Products   []string
	Categories []string
}

// Empty reports whether the requirement imposes nothing.
func (m MustHave) Empty() bool {
	return len(m.Products) == 0 && len(m.Categories) == 0
}

// MatchesItem reports whether the line item satisfies the requirement by
// product id or category id.
func (m MustHave) MatchesItem(item LineItem) bool {
	for _, id := range m.Products {
		if id != "" && id == item.ProductID {
			return true
		}
	}
	for _, id := range m.Categories {
		if id != "" && id == item.CategoryID {
			return true
		}
	}
	return false
}

// Adjustment is one monetary effect carried by a rule. Percent holds the
// percentage for percent adjustments; Amount holds cents for fixed ones.
// MaxAmount caps the total effect of a percent adjustment across the cart,
// zero meaning uncapped.
type Adjustment struct {
	Type      AdjustmentType
	Percent   float64
	Amount    int64
	MaxAmount int64
	Scope     Applicability
}

// FrequencyLimit bounds rule redemptions per customer within a calendar
// window.
type FrequencyLimit struct {
	Count  int
	Window FrequencyWindow
}

// UsageLimits holds the per-customer redemption constraints of a rule.
// Total zero means no lifetime cap; a nil Frequency means no window cap.
type UsageLimits struct {
	Total     int
	Frequency *FrequencyLimit
}

// Rule is a discount or surcharge definition. Start and Expiry bound the
// validity window; nil means unbounded on that side. DaysOfWeek keys are
// lowercase weekday names; a missing or empty map allows every day.
type Rule struct {
	ID          string
	OrgID       string
	Mode        RuleMode
	Name        string
	Code        string
	AutoAssign  bool
	Start       *time.Time
	Expiry      *time.Time
	ArchivedAt  *time.Time
	DaysOfWeek  map[string]bool
	Musts       MustHave
	Limits      UsageLimits
	Adjustments []Adjustment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Archived reports whether the rule has been retired.
func (r Rule) Archived() bool {
	return r.ArchivedAt != nil && !r.ArchivedAt.IsZero()
}

// ActiveAt reports whether now falls inside the rule's validity window.
func (r Rule) ActiveAt(now time.Time) bool {
	if r.Archived() {
		return false
	}
	if r.Start != nil && now.Before(*r.Start) {
		return false
	}
	if r.Expiry != nil && now.After(*r.Expiry) {
		return false
	}
	return true
}

// AllowsDay reports whether the rule may run on the given weekday. Day gating
// only applies when at least one day is explicitly enabled.
func (r Rule) AllowsDay(day time.Weekday) bool {
	if len(r.DaysOfWeek) == 0 {
		return true
	}
	any := false
	for _, enabled := range r.DaysOfWeek {
		if enabled {
			any = true
			break
		}
	}
	if !any {
		return true
	}
	return r.DaysOfWeek[WeekdayKey(day)]
}

// WeekdayKey converts a weekday to the lowercase key used in rule documents.
func WeekdayKey(day time.Weekday) string {
	switch day {
	case time.Sunday:
		return "sunday"
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return ""
	}
}
