package repositories

import (
	"context"
	"time"

	domain "github.com/studiopos/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Rules() RuleRepository
	Customers() CustomerRepository
	Memberships() MembershipRepository
	Transactions() TransactionRepository
	Products() ProductRepository
	OrgSettings() OrgSettingsRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// RuleRepository stores discount and surcharge rule definitions.
// Find methods return the rule regardless of mode, archival or validity
// window; callers classify the miss themselves.
type RuleRepository interface {
	FindByID(ctx context.Context, orgID string, ruleID string) (domain.Rule, error)
	FindByCode(ctx context.Context, orgID string, code string) (domain.Rule, error)
	List(ctx context.Context, orgID string, filter RuleListFilter) ([]domain.Rule, error)
}

// RuleListFilter narrows rule listings.
type RuleListFilter struct {
	Mode            domain.RuleMode
	AutoAssignOnly  bool
	IncludeArchived bool
}

// CustomerRepository stores customer profiles with their credit ledger and
// discount history.
type CustomerRepository interface {
	FindByID(ctx context.Context, orgID string, customerID string) (domain.Customer, error)
	AppendDiscountUsage(ctx context.Context, orgID string, customerID string, usage domain.DiscountUsage) error
	DebitCredits(ctx context.Context, orgID string, customerID string, entry domain.CreditEntry) (int64, error)
	SetProcessorRef(ctx context.Context, orgID string, customerID string, ref string) error
}

// MembershipRepository stores recurring membership records.
type MembershipRepository interface {
	Insert(ctx context.Context, membership domain.Membership) error
	FindActive(ctx context.Context, orgID string, customerID string, now time.Time) ([]domain.Membership, error)
}

// TransactionRepository persists immutable transaction records.
type TransactionRepository interface {
	Insert(ctx context.Context, txn domain.Transaction) error
	FindByID(ctx context.Context, orgID string, txnID string) (domain.Transaction, error)
	UpdateStatus(ctx context.Context, orgID string, txnID string, status domain.TransactionStatus) error
}

// ProductRepository exposes the stock mutations settlement needs.
type ProductRepository interface {
	DecrementStock(ctx context.Context, orgID string, productID string, quantity int) (int64, error)
}

// OrgSettingsRepository reads per-organisation behaviour settings.
type OrgSettingsRepository interface {
	Get(ctx context.Context, orgID string) (domain.OrgSettings, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
