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

const ruleCollection = "rules"

// RuleRepository persists discount and surcharge rules under
// orgs/{org}/rules. Codes are stored case-folded alongside the display code so
// lookups are case-insensitive.
type RuleRepository struct {
	base *pfirestore.OrgRepository[ruleDoc]
}

var _ repositories.RuleRepository = (*RuleRepository)(nil)

// NewRuleRepository constructs a Firestore-backed rule repository.
func NewRuleRepository(provider *pfirestore.Provider) (*RuleRepository, error) {
	if provider == nil {
		return nil, errors.New("rule repository requires firestore provider")
	}
	return &RuleRepository{
		base: pfirestore.NewOrgRepository[ruleDoc](provider, ruleCollection, nil, nil),
	}, nil
}

// FindByID fetches the rule regardless of mode or archival state.
func (r *RuleRepository) FindByID(ctx context.Context, orgID string, ruleID string) (domain.Rule, error) {
	doc, err := r.base.Get(ctx, orgID, ruleID)
	if err != nil {
		return domain.Rule{}, err
	}
	return ruleFromDoc(doc.ID, strings.TrimSpace(orgID), doc.Data), nil
}

// FindByCode fetches the rule whose case-folded code matches.
func (r *RuleRepository) FindByCode(ctx context.Context, orgID string, code string) (domain.Rule, error) {
	fold := strings.ToUpper(strings.TrimSpace(code))
	docs, err := r.base.Query(ctx, orgID, func(q firestore.Query) firestore.Query {
		return q.Where("codeFold", "==", fold).Limit(1)
	})
	if err != nil {
		return domain.Rule{}, err
	}
	if len(docs) == 0 {
		return domain.Rule{}, pfirestore.NotFoundError("rules.findbycode", errors.New("rule code not found"))
	}
	return ruleFromDoc(docs[0].ID, strings.TrimSpace(orgID), docs[0].Data), nil
}

// List returns rules matching the filter. Validity-window filtering is left to
// the caller; archived rules are excluded unless requested.
func (r *RuleRepository) List(ctx context.Context, orgID string, filter repositories.RuleListFilter) ([]domain.Rule, error) {
	docs, err := r.base.Query(ctx, orgID, func(q firestore.Query) firestore.Query {
		if filter.Mode != "" {
			q = q.Where("mode", "==", string(filter.Mode))
		}
		if filter.AutoAssignOnly {
			q = q.Where("autoAssign", "==", true)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	org := strings.TrimSpace(orgID)
	rules := make([]domain.Rule, 0, len(docs))
	for _, doc := range docs {
		rule := ruleFromDoc(doc.ID, org, doc.Data)
		if !filter.IncludeArchived && rule.Archived() {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
