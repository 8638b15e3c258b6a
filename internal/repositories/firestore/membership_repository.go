package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/studiopos/api/internal/domain"
	pfirestore "github.com/studiopos/api/internal/platform/firestore"
	"github.com/studiopos/api/internal/repositories"
)

const membershipCollection = "memberships"

// MembershipRepository persists recurring membership records under
// orgs/{org}/memberships.
type MembershipRepository struct {
	base *pfirestore.OrgRepository[membershipDoc]
}

var _ repositories.MembershipRepository = (*MembershipRepository)(nil)

// NewMembershipRepository constructs a Firestore-backed membership repository.
func NewMembershipRepository(provider *pfirestore.Provider) (*MembershipRepository, error) {
	if provider == nil {
		return nil, errors.New("membership repository requires firestore provider")
	}
	return &MembershipRepository{
		base: pfirestore.NewOrgRepository[membershipDoc](provider, membershipCollection, nil, nil),
	}, nil
}

func (r *MembershipRepository) Insert(ctx context.Context, membership domain.Membership) error {
	if strings.TrimSpace(membership.ID) == "" {
		return errors.New("membership repository: membership id is required")
	}
	_, err := r.base.Create(ctx, membership.OrgID, membership.ID, membershipToDoc(membership))
	return err
}

// FindActive returns the customer's memberships whose next billing date is in
// the future. Cancelled records are filtered out here; callers apply any
// further gating.
func (r *MembershipRepository) FindActive(ctx context.Context, orgID string, customerID string, now time.Time) ([]domain.Membership, error) {
	docs, err := r.base.Query(ctx, orgID, func(q firestore.Query) firestore.Query {
		return q.
			Where("customerId", "==", strings.TrimSpace(customerID)).
			Where("nextBillingDate", ">", now)
	})
	if err != nil {
		return nil, err
	}

	org := strings.TrimSpace(orgID)
	memberships := make([]domain.Membership, 0, len(docs))
	for _, doc := range docs {
		membership := membershipFromDoc(doc.ID, org, doc.Data)
		if membership.Status == domain.MembershipStatusCancelled {
			continue
		}
		memberships = append(memberships, membership)
	}
	return memberships, nil
}
