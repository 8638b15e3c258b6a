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

const transactionCollection = "transactions"

// TransactionRepository persists immutable transaction records under
// orgs/{org}/transactions. Only the status field is ever updated.
type TransactionRepository struct {
	base *pfirestore.OrgRepository[transactionDoc]
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{
		base: pfirestore.NewOrgRepository[transactionDoc](provider, transactionCollection, nil, nil),
	}, nil
}

func (r *TransactionRepository) Insert(ctx context.Context, txn domain.Transaction) error {
	if strings.TrimSpace(txn.ID) == "" {
		return errors.New("transaction repository: transaction id is required")
	}
	_, err := r.base.Create(ctx, txn.OrgID, txn.ID, transactionToDoc(txn))
	return err
}

func (r *TransactionRepository) FindByID(ctx context.Context, orgID string, txnID string) (domain.Transaction, error) {
	doc, err := r.base.Get(ctx, orgID, txnID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return transactionFromDoc(doc.ID, strings.TrimSpace(orgID), doc.Data), nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, orgID string, txnID string, status domain.TransactionStatus) error {
	_, err := r.base.Update(ctx, orgID, txnID, []firestore.Update{
		{Path: "status", Value: string(status)},
	})
	return err
}
