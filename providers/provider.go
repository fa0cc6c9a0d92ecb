package providers

import (
	"context"
	"errors"
	"fmt"
)

// PaymentProvider defines the mobile-money operations the donation flow depends on.
type PaymentProvider interface {
	// InitiateSTKPush asks the provider to prompt the subscriber for payment.
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error)

	// QuerySTKStatus asks the provider for the outcome of an earlier prompt.
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResult, error)
}

// STKPushRequest is a request to prompt a subscriber. Amount is in whole KES.
type STKPushRequest struct {
	Amount      int64
	Phone       string
	Reference   string
	Description string
}

// STKPushResult carries the provider's correlation ids for an accepted prompt.
type STKPushResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	CustomerMessage   string
}

// QueryState is the provider's view of a prompt.
type QueryState string

const (
	QueryPending   QueryState = "PENDING"
	QuerySucceeded QueryState = "SUCCEEDED"
	QueryFailed    QueryState = "FAILED"
)

// STKQueryResult is the mapped response of an STK status query.
type STKQueryResult struct {
	State      QueryState
	ResultCode string
	ResultDesc string
}

var (
	// ErrProviderAuth is returned when no access token could be obtained.
	ErrProviderAuth = errors.New("mpesa authentication failed")

	// ErrProviderNotConfigured is returned when Daraja credentials are missing.
	ErrProviderNotConfigured = errors.New("mpesa is not configured")
)

// InitiationError is a rejected or failed STK push. Detail carries the
// provider's description verbatim when one was returned.
type InitiationError struct {
	Detail string
	Err    error
}

func (e *InitiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stk push failed: %s: %v", e.Detail, e.Err)
	}
	return "stk push failed: " + e.Detail
}

func (e *InitiationError) Unwrap() error { return e.Err }
