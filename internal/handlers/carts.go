package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/platform/auth"
	"github.com/studiopos/api/internal/platform/httpx"
	"github.com/studiopos/api/internal/repositories"
	"github.com/studiopos/api/internal/services"
)

const maxCartBodySize = 64 * 1024

// CartHandlers exposes the cart pricing endpoints used by the register.
type CartHandlers struct {
	authn     *auth.Authenticator
	engine    *services.AdjustmentEngine
	customers repositories.CustomerRepository
	limiter   throttle
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before
// invoking the adjustment engine.
func NewCartHandlers(authn *auth.Authenticator, engine *services.AdjustmentEngine, customers repositories.CustomerRepository) *CartHandlers {
	return &CartHandlers{
		authn:     authn,
		engine:    engine,
		customers: customers,
		limiter:   newOrgThrottle(120, time.Minute, nil),
	}
}

// Routes wires the /carts endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/adjust", h.adjustCart)
	r.Post("/auto-discount", h.autoDiscount)
}

type adjustCartRequest struct {
	Cart         cartPayload `json:"cart"`
	DiscountCode string      `json:"discountCode"`
	DiscountID   string      `json:"discountId"`
}

type adjustCartResponse struct {
	Cart cartPayload `json:"cart"`
}

type autoDiscountRequest struct {
	Cart cartPayload `json:"cart"`
}

type autoDiscountResponse struct {
	Rule *rulePayload `json:"rule"`
}

func (h *CartHandlers) adjustCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.engine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("adjustments_unavailable", "adjustment engine is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req adjustCartRequest
	if !h.decodeCartRequest(ctx, w, r, &req) {
		return
	}
	if !h.allow(ctx, w, req.Cart.OrgID) {
		return
	}

	cart := cartFromPayload(req.Cart)
	customer, ok := h.loadCustomer(ctx, w, cart.OrgID, cart.CustomerID)
	if !ok {
		return
	}

	adjusted, err := h.engine.CalculateAdjustments(ctx, services.CalculateAdjustmentsCommand{
		Cart:         cart,
		Customer:     customer,
		DiscountCode: req.DiscountCode,
		DiscountID:   req.DiscountID,
	})
	if err != nil {
		writeAdjustmentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, adjustCartResponse{Cart: buildCartPayload(adjusted)})
}

func (h *CartHandlers) autoDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.engine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("adjustments_unavailable", "adjustment engine is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req autoDiscountRequest
	if !h.decodeCartRequest(ctx, w, r, &req) {
		return
	}
	if !h.allow(ctx, w, req.Cart.OrgID) {
		return
	}

	cart := cartFromPayload(req.Cart)
	customer, ok := h.loadCustomer(ctx, w, cart.OrgID, cart.CustomerID)
	if !ok {
		return
	}

	rule, err := h.engine.FindBestAutoDiscount(ctx, services.FindBestAutoDiscountCommand{
		Cart:     cart,
		Customer: customer,
	})
	if err != nil {
		writeAdjustmentError(ctx, w, err)
		return
	}

	resp := autoDiscountResponse{}
	if rule != nil {
		payload := buildRulePayload(*rule)
		resp.Rule = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// decodeCartRequest reads and unmarshals the request body into dst, writing
// the error response itself on failure.
func (h *CartHandlers) decodeCartRequest(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

// allow applies the per-org request limit.
func (h *CartHandlers) allow(ctx context.Context, w http.ResponseWriter, orgID string) bool {
	if h.limiter == nil {
		return true
	}
	if !h.limiter.Allow(strings.TrimSpace(orgID)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many pricing requests; slow down", http.StatusTooManyRequests))
		return false
	}
	return true
}

// loadCustomer resolves the cart's customer when one is attached. A missing
// customer is a client error; an unreachable store is a 503.
func (h *CartHandlers) loadCustomer(ctx context.Context, w http.ResponseWriter, orgID, customerID string) (*domain.Customer, bool) {
	if strings.TrimSpace(customerID) == "" {
		return nil, true
	}
	if h.customers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("customers_unavailable", "customer store is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	customer, err := h.customers.FindByID(ctx, orgID, customerID)
	if err != nil {
		var repoErr repositories.RepositoryError
		switch {
		case errors.As(err, &repoErr) && repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "customer not found", http.StatusNotFound))
		case errors.As(err, &repoErr) && repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("customers_unavailable", "customer store is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("customer_lookup_failed", "failed to load customer", http.StatusInternalServerError))
		}
		return nil, false
	}
	return &customer, true
}

func writeAdjustmentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAdjustmentInvalidInput), errors.Is(err, services.ErrRuleInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAdjustmentUnsupportedType):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_adjustment", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrRuleUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rules_unavailable", "rule store is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("adjustment_error", "failed to price cart", http.StatusInternalServerError))
	}
}
