package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studiopos/api/internal/payments"
	"github.com/studiopos/api/internal/platform/config"
	"github.com/studiopos/api/internal/repositories"
	"github.com/studiopos/api/internal/services"
)

// Services bundles the service layer that handlers rely upon. Concrete
// implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Rules       *services.RuleService
	Adjustments *services.AdjustmentEngine
	Settlement  *services.SettlementService
	System      services.SystemService
}

// Dependencies carries the collaborators constructed outside the container:
// processor adapters, outbound messaging and logging.
type Dependencies struct {
	Billing  payments.RecurringBillingProvider
	Receipts services.ReceiptSender
	Events   services.EventPublisher
	Logger   *zap.Logger
	Build    services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, deps Dependencies) (Services, error) {
	var svc Services

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ruleSvc, err := services.NewRuleService(services.RuleServiceDeps{
		Rules:  reg.Rules(),
		Now:    time.Now,
		Logger: zapEventLogger(logger.Named("rules")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rule service: %w", err)
	}
	svc.Rules = ruleSvc

	engine, err := services.NewAdjustmentEngine(services.AdjustmentEngineDeps{
		Rules:       ruleSvc,
		Memberships: reg.Memberships(),
		OrgSettings: reg.OrgSettings(),
		Now:         time.Now,
		Logger:      zapEventLogger(logger.Named("adjustments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build adjustment engine: %w", err)
	}
	svc.Adjustments = engine

	settlement, err := services.NewSettlementService(services.SettlementServiceDeps{
		Transactions: reg.Transactions(),
		Customers:    reg.Customers(),
		Memberships:  reg.Memberships(),
		Products:     reg.Products(),
		OrgSettings:  reg.OrgSettings(),
		Billing:      deps.Billing,
		Receipts:     deps.Receipts,
		Events:       deps.Events,
		Clock:        time.Now,
		Logger:       zapEventLogger(logger.Named("settlement")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build settlement service: %w", err)
	}
	svc.Settlement = settlement

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// zapEventLogger adapts a zap logger to the service layer's event logger shape.
func zapEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
