package upstream

import (
	"errors"
	"fmt"
)

// Machine-readable error codes returned by the marketplace API.
const (
	CodeVoucherAlreadyUsed = "voucher_already_used"
	CodeVoucherExpired     = "voucher_expired"
	CodeVoucherNotEligible = "voucher_not_applicable"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal_error"
)

// ErrTimeout marks calls that exceeded the upstream deadline. Callers surface
// this differently from a generic connection failure.
var ErrTimeout = errors.New("upstream: request timed out")

// APIError is a business rejection from the marketplace API, carrying the
// machine-readable code alongside the user-facing message.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("upstream: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// AlreadyUsed reports whether the voucher was durably consumed.
func (e *APIError) AlreadyUsed() bool { return e.Code == CodeVoucherAlreadyUsed }

// AsAPIError unwraps err into an APIError when possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
