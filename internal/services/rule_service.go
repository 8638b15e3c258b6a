package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/repositories"
)

// RuleService resolves discount and surcharge rules for the adjustment engine.
// Lookup misses come back as *DiscountLookupError so the engine can surface a
// register-friendly message without treating them as failures.
type RuleService struct {
	rules  repositories.RuleRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

type RuleServiceDeps struct {
	Rules  repositories.RuleRepository
	Now    func() time.Time
	Logger func(context.Context, string, map[string]any)
}

func NewRuleService(deps RuleServiceDeps) (*RuleService, error) {
	if deps.Rules == nil {
		return nil, errors.New("rule service: rule repository is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RuleService{
		rules:  deps.Rules,
		now:    func() time.Time { return now().UTC() },
		logger: logger,
	}, nil
}

// ListActiveSurcharges returns every surcharge rule valid at the current
// instant. Archived and out-of-window rules are filtered out.
func (s *RuleService) ListActiveSurcharges(ctx context.Context, orgID string) ([]Rule, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: org id is required", ErrRuleInvalidInput)
	}

	rules, err := s.rules.List(ctx, orgID, repositories.RuleListFilter{Mode: domain.RuleModeSurcharge})
	if err != nil {
		return nil, s.translateError(err)
	}

	now := s.now()
	active := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.ActiveAt(now) {
			active = append(active, rule)
		}
	}
	return active, nil
}

// ListAutoDiscounts returns auto-assign discount rules valid at the current
// instant.
func (s *RuleService) ListAutoDiscounts(ctx context.Context, orgID string) ([]Rule, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: org id is required", ErrRuleInvalidInput)
	}

	rules, err := s.rules.List(ctx, orgID, repositories.RuleListFilter{
		Mode:           domain.RuleModeDiscount,
		AutoAssignOnly: true,
	})
	if err != nil {
		return nil, s.translateError(err)
	}

	now := s.now()
	active := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.AutoAssign && rule.ActiveAt(now) {
			active = append(active, rule)
		}
	}
	return active, nil
}

// LookupDiscountByCode resolves a discount by its redemption code.
func (s *RuleService) LookupDiscountByCode(ctx context.Context, orgID string, code string) (Rule, error) {
	orgID = strings.TrimSpace(orgID)
	code = strings.TrimSpace(code)
	if orgID == "" {
		return Rule{}, fmt.Errorf("%w: org id is required", ErrRuleInvalidInput)
	}
	if code == "" {
		return Rule{}, fmt.Errorf("%w: discount code is required", ErrRuleInvalidInput)
	}

	rule, err := s.rules.FindByCode(ctx, orgID, code)
	return s.classifyLookup(ctx, rule, err, map[string]any{"orgId": orgID, "code": code})
}

// LookupDiscountByID resolves a discount by its identifier.
func (s *RuleService) LookupDiscountByID(ctx context.Context, orgID string, ruleID string) (Rule, error) {
	orgID = strings.TrimSpace(orgID)
	ruleID = strings.TrimSpace(ruleID)
	if orgID == "" {
		return Rule{}, fmt.Errorf("%w: org id is required", ErrRuleInvalidInput)
	}
	if ruleID == "" {
		return Rule{}, fmt.Errorf("%w: rule id is required", ErrRuleInvalidInput)
	}

	rule, err := s.rules.FindByID(ctx, orgID, ruleID)
	return s.classifyLookup(ctx, rule, err, map[string]any{"orgId": orgID, "ruleId": ruleID})
}

// classifyLookup turns a repository result into either a usable rule or a
// *DiscountLookupError with a structured reason. Infrastructure failures pass
// through unchanged.
func (s *RuleService) classifyLookup(ctx context.Context, rule Rule, err error, fields map[string]any) (Rule, error) {
	miss := func(reason LookupReason, message string) (Rule, error) {
		fields["reason"] = string(reason)
		s.logger(ctx, "discount_lookup_miss", fields)
		return Rule{}, &DiscountLookupError{Reason: reason, Message: message}
	}

	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return miss(LookupNotFound, "Discount not found")
		}
		return Rule{}, s.translateError(err)
	}

	if rule.Mode != domain.RuleModeDiscount {
		return miss(LookupWrongMode, "Discount not found")
	}
	if rule.Archived() {
		return miss(LookupArchived, "This discount is no longer available")
	}

	now := s.now()
	if rule.Start != nil && now.Before(*rule.Start) {
		return miss(LookupNotStarted, "This discount is not active yet")
	}
	if rule.Expiry != nil && now.After(*rule.Expiry) {
		return miss(LookupExpired, "This discount has expired")
	}

	return rule, nil
}

func (s *RuleService) translateError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrRuleUnavailable, err)
	}
	return err
}
