package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPlugin signals a plugin name missing from the registry.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrReceiptNotFound signals a receipt document missing at upload time.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrUnauthorized signals rejected vendor credentials (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited signals a vendor-side rate limit (429).
	ErrRateLimited = errors.New("rate limited")
	// ErrVendorUnavailable signals a non-2xx answer from a vendor API.
	ErrVendorUnavailable = errors.New("vendor unavailable")
	// ErrBackend signals an application-level error reported by the expense backend.
	ErrBackend = errors.New("expense backend error")
	// ErrInvalidMonth signals a malformed billing month.
	ErrInvalidMonth = errors.New("invalid month")
	// ErrAlreadySubmitted signals an expense already recorded in the ledger.
	ErrAlreadySubmitted = errors.New("already submitted")
)

// BackendError is an error envelope returned with HTTP success by the expense backend.
type BackendError struct {
	Code    int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("expensify api error %d: %s", e.Code, e.Message)
}

func (e *BackendError) Unwrap() error { return ErrBackend }

// VendorError carries the status and a body excerpt of a failed vendor call.
type VendorError struct {
	Vendor string
	Status int
	Body   string
}

func (e *VendorError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Vendor, e.Status, e.Body)
}

func (e *VendorError) Unwrap() error { return ErrVendorUnavailable }
