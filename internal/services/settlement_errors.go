package services

import "errors"

var (
	// ErrSettlementInvalidInput signals a malformed finalize command.
	ErrSettlementInvalidInput = errors.New("settlement: invalid input")
	// ErrSettlementBilling indicates the recurring billing processor rejected provisioning.
	ErrSettlementBilling = errors.New("settlement: recurring billing failed")
	// ErrSettlementNotFound indicates the referenced transaction does not exist.
	ErrSettlementNotFound = errors.New("settlement: transaction not found")
)
