package services

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a ServiceError for API clients.
type ErrorKind string

const (
	KindInvalidAmount       ErrorKind = "InvalidAmount"
	KindInvalidPhone        ErrorKind = "InvalidPhone"
	KindCharityNotFound     ErrorKind = "CharityNotFound"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindProviderAuth        ErrorKind = "ProviderAuthError"
	KindPaymentInitiation   ErrorKind = "PaymentInitiationError"
	KindNotFound            ErrorKind = "NotFound"
	KindInternal            ErrorKind = "Internal"
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newServiceError(status int, kind ErrorKind, msg string, err error) *ServiceError {
	return &ServiceError{StatusCode: status, Kind: kind, Message: msg, Err: err}
}

func errInternal(msg string, err error) *ServiceError {
	return newServiceError(http.StatusInternalServerError, KindInternal, msg, err)
}

func errNotFound(msg string) *ServiceError {
	return newServiceError(http.StatusNotFound, KindNotFound, msg, nil)
}
