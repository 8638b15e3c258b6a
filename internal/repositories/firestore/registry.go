package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/studiopos/api/internal/platform/firestore"
	"github.com/studiopos/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry port.
type Registry struct {
	provider     *pfirestore.Provider
	rules        *RuleRepository
	customers    *CustomerRepository
	memberships  *MembershipRepository
	transactions *TransactionRepository
	products     *ProductRepository
	orgSettings  *OrgSettingsRepository
	health       repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository over a shared provider. The health
// repository probes Firestore connectivity.
func NewRegistry(provider *pfirestore.Provider, clock func() time.Time) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	rules, err := NewRuleRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	memberships, err := NewMembershipRepository(provider)
	if err != nil {
		return nil, err
	}
	transactions, err := NewTransactionRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orgSettings, err := NewOrgSettingsRepository(provider)
	if err != nil {
		return nil, err
	}

	health, err := repositories.NewProbeHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	}, clock)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:     provider,
		rules:        rules,
		customers:    customers,
		memberships:  memberships,
		transactions: transactions,
		products:     products,
		orgSettings:  orgSettings,
		health:       health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Rules() repositories.RuleRepository               { return r.rules }
func (r *Registry) Customers() repositories.CustomerRepository       { return r.customers }
func (r *Registry) Memberships() repositories.MembershipRepository   { return r.memberships }
func (r *Registry) Transactions() repositories.TransactionRepository { return r.transactions }
func (r *Registry) Products() repositories.ProductRepository         { return r.products }
func (r *Registry) OrgSettings() repositories.OrgSettingsRepository  { return r.orgSettings }
func (r *Registry) Health() repositories.HealthRepository            { return r.health }
