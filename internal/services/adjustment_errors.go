package services

import "errors"

var (
	// ErrAdjustmentInvalidInput signals bad request data such as a missing org or malformed cart.
	ErrAdjustmentInvalidInput = errors.New("adjustments: invalid input")
	// ErrAdjustmentUnsupportedType is returned when a rule carries an unknown adjustment type.
	ErrAdjustmentUnsupportedType = errors.New("adjustments: unsupported adjustment type")
)
