package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/studiopos/api/internal/platform/auth"
	"github.com/studiopos/api/internal/platform/httpx"
	"github.com/studiopos/api/internal/services"
)

const maxTransactionBodySize = 64 * 1024

// TransactionHandlers exposes the settlement endpoints used when a sale closes.
type TransactionHandlers struct {
	authn      *auth.Authenticator
	settlement *services.SettlementService
}

// NewTransactionHandlers constructs handlers enforcing Firebase authentication
// before invoking the settlement service.
func NewTransactionHandlers(authn *auth.Authenticator, settlement *services.SettlementService) *TransactionHandlers {
	return &TransactionHandlers{
		authn:      authn,
		settlement: settlement,
	}
}

// Routes wires the /transactions endpoints onto the provided router.
func (h *TransactionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.finalizePayment)
	r.Post("/{transactionId}/complete-setup", h.completeSetup)
}

type finalizePaymentRequest struct {
	Cart          cartPayload `json:"cart"`
	EmployeeID    string      `json:"employeeId"`
	PaymentMethod string      `json:"paymentMethod"`
	ProcessorRef  string      `json:"processorRef"`
	Outcome       string      `json:"outcome"`
	Currency      string      `json:"currency"`
}

type completeSetupRequest struct {
	OrgID    string `json:"orgId"`
	Currency string `json:"currency"`
}

type transactionResponse struct {
	Transaction transactionPayload `json:"transaction"`
}

func (h *TransactionHandlers) finalizePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settlement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settlement_unavailable", "settlement service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxTransactionBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req finalizePaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
			employeeID = identity.UID
		}
	}

	txn, err := h.settlement.FinalizePayment(ctx, services.FinalizePaymentCommand{
		Cart:          cartFromPayload(req.Cart),
		EmployeeID:    employeeID,
		PaymentMethod: services.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		ProcessorRef:  req.ProcessorRef,
		Outcome:       services.PaymentOutcome(strings.TrimSpace(req.Outcome)),
		Currency:      req.Currency,
	})
	if err != nil {
		writeSettlementError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, transactionResponse{Transaction: buildTransactionPayload(txn)})
}

func (h *TransactionHandlers) completeSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settlement == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settlement_unavailable", "settlement service is unavailable", http.StatusServiceUnavailable))
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	if transactionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "transaction id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxTransactionBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req completeSetupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return
	}

	txn, err := h.settlement.CompleteSetup(ctx, services.CompleteSetupCommand{
		OrgID:         req.OrgID,
		TransactionID: transactionID,
		Currency:      req.Currency,
	})
	if err != nil {
		writeSettlementError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, transactionResponse{Transaction: buildTransactionPayload(txn)})
}

func writeSettlementError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSettlementInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSettlementNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("transaction_not_found", "transaction not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSettlementBilling):
		httpx.WriteError(ctx, w, httpx.NewError("billing_failed", "recurring billing provisioning failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("settlement_error", "failed to finalize transaction", http.StatusInternalServerError))
	}
}
