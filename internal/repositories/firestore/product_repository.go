package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/studiopos/api/internal/platform/firestore"
	"github.com/studiopos/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository exposes the stock mutations settlement needs, backed by
// orgs/{org}/products.
type ProductRepository struct {
	base *pfirestore.OrgRepository[productDoc]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewOrgRepository[productDoc](provider, productCollection, nil, nil),
	}, nil
}

// DecrementStock subtracts quantity from the product's stock inside a
// transaction, flooring at zero, and returns the remaining stock.
func (r *ProductRepository) DecrementStock(ctx context.Context, orgID string, productID string, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, errors.New("product repository: quantity must be positive")
	}

	ref, err := r.base.DocumentRef(ctx, orgID, productID)
	if err != nil {
		return 0, err
	}

	var remaining int64
	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}
		remaining = doc.Data.Stock - int64(quantity)
		if remaining < 0 {
			remaining = 0
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: remaining},
		})
	})
	if err != nil {
		return 0, pfirestore.WrapError("products.decrementstock", err)
	}
	return remaining, nil
}
