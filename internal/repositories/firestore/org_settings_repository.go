package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/studiopos/api/internal/domain"
	pfirestore "github.com/studiopos/api/internal/platform/firestore"
	"github.com/studiopos/api/internal/repositories"
)

const settingsCollection = "settings"

// settingsDocID is the fixed document id of the org's behaviour settings.
const settingsDocID = "general"

// OrgSettingsRepository reads per-organisation behaviour settings from
// orgs/{org}/settings/general.
type OrgSettingsRepository struct {
	base *pfirestore.OrgRepository[orgSettingsDoc]
}

var _ repositories.OrgSettingsRepository = (*OrgSettingsRepository)(nil)

// NewOrgSettingsRepository constructs a Firestore-backed settings repository.
func NewOrgSettingsRepository(provider *pfirestore.Provider) (*OrgSettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("org settings repository requires firestore provider")
	}
	return &OrgSettingsRepository{
		base: pfirestore.NewOrgRepository[orgSettingsDoc](provider, settingsCollection, nil, nil),
	}, nil
}

func (r *OrgSettingsRepository) Get(ctx context.Context, orgID string) (domain.OrgSettings, error) {
	doc, err := r.base.Get(ctx, orgID, settingsDocID)
	if err != nil {
		return domain.OrgSettings{}, err
	}
	return domain.OrgSettings{
		OrgID:        strings.TrimSpace(orgID),
		Timezone:     doc.Data.Timezone,
		AutoReceipt:  doc.Data.AutoReceipt,
		ReceiptFrom:  doc.Data.ReceiptFrom,
		ReceiptName:  doc.Data.ReceiptName,
		CurrencyCode: doc.Data.CurrencyCode,
	}, nil
}
