package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/studiopos/api/internal/domain"
	pfirestore "github.com/studiopos/api/internal/platform/firestore"
	"github.com/studiopos/api/internal/repositories"
)

const customerCollection = "customers"

// CustomerRepository persists customer profiles, their credit ledger and
// discount-usage history under orgs/{org}/customers.
type CustomerRepository struct {
	base *pfirestore.OrgRepository[customerDoc]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base: pfirestore.NewOrgRepository[customerDoc](provider, customerCollection, nil, nil),
	}, nil
}

func (r *CustomerRepository) FindByID(ctx context.Context, orgID string, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, orgID, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return customerFromDoc(doc.ID, strings.TrimSpace(orgID), doc.Data), nil
}

// AppendDiscountUsage appends one usage entry to the customer's history.
func (r *CustomerRepository) AppendDiscountUsage(ctx context.Context, orgID string, customerID string, usage domain.DiscountUsage) error {
	entry := discountUsageDoc{
		DiscountID: usage.DiscountID,
		Amount:     usage.Amount,
		Custom:     usage.Custom,
		UsedAt:     usage.UsedAt,
	}
	_, err := r.base.Update(ctx, orgID, customerID, []firestore.Update{
		{Path: "discounts", Value: firestore.ArrayUnion(entry)},
	})
	return err
}

// DebitCredits subtracts the entry amount from the balance inside a
// transaction, flooring at zero, and appends the debit entry. The applied
// debit is clamped to the available balance; the new balance is returned.
func (r *CustomerRepository) DebitCredits(ctx context.Context, orgID string, customerID string, entry domain.CreditEntry) (int64, error) {
	if entry.Amount <= 0 {
		return 0, errors.New("customer repository: debit amount must be positive")
	}

	ref, err := r.base.DocumentRef(ctx, orgID, customerID)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}

		applied := entry.Amount
		if applied > doc.Data.CreditBalance {
			applied = doc.Data.CreditBalance
		}
		balance = doc.Data.CreditBalance - applied

		debit := creditEntryDoc{
			Amount:        applied,
			Note:          entry.Note,
			TransactionID: entry.TransactionID,
			Date:          entry.Date,
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "creditBalance", Value: balance},
			{Path: "debits", Value: firestore.ArrayUnion(debit)},
		})
	})
	if err != nil {
		return 0, pfirestore.WrapError("customers.debitcredits", err)
	}
	return balance, nil
}

// SetProcessorRef stores the billing processor's customer reference.
func (r *CustomerRepository) SetProcessorRef(ctx context.Context, orgID string, customerID string, ref string) error {
	_, err := r.base.Update(ctx, orgID, customerID, []firestore.Update{
		{Path: "processorRef", Value: strings.TrimSpace(ref)},
	})
	return err
}
