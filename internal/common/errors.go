// Package common defines shared constants, sentinel errors and the coded
// domain error used across the verification service. Callers should use
// errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ErrorKind groups domain error codes into the categories callers react to.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindState        ErrorKind = "state"
	KindFraud        ErrorKind = "fraud"
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInternal     ErrorKind = "internal"
)

// Stable error codes exposed to API clients.
const (
	CodeValidation                = "VALIDATION_ERROR"
	CodeInvalidStoreID            = "INVALID_STORE_ID"
	CodeInvalidQRParams           = "INVALID_QR_PARAMS"
	CodeQRCodeExpired             = "QR_CODE_EXPIRED"
	CodeInvalidSessionToken       = "INVALID_SESSION_TOKEN"
	CodeStoreNotFound             = "STORE_NOT_FOUND"
	CodeSessionNotFound           = "SESSION_NOT_FOUND"
	CodeSessionExpired            = "SESSION_EXPIRED"
	CodeSessionInvalidState       = "SESSION_INVALID_STATE"
	CodeVerificationAlreadyExists = "VERIFICATION_ALREADY_EXISTS"
	CodeVerificationNotFound      = "VERIFICATION_NOT_FOUND"
	CodeTransactionNotFound       = "TRANSACTION_NOT_FOUND"
	CodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	CodeFraudDetectionBlocked     = "FRAUD_DETECTION_BLOCKED"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeInternal                  = "INTERNAL_ERROR"
)

// DomainError is an expected, coded outcome of a verification operation.
// It is never retried by the service itself.
type DomainError struct {
	Code    string
	Kind    ErrorKind
	Message string
	// RetryAfter is set for fraud/rate errors that the caller may retry after a cooldown.
	RetryAfter time.Duration
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches two domain errors by code, so wrapped copies still match the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError builds a DomainError with the given code, kind and message.
func NewDomainError(code string, kind ErrorKind, message string) *DomainError {
	return &DomainError{Code: code, Kind: kind, Message: message}
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *DomainError) WithMessage(msg string) *DomainError {
	c := *e
	c.Message = msg
	return &c
}

// WithRetryAfter returns a copy of e carrying a retry hint.
func (e *DomainError) WithRetryAfter(d time.Duration) *DomainError {
	c := *e
	c.RetryAfter = d
	return &c
}

// Wrap returns a copy of e with err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	c := *e
	c.Err = err
	return &c
}

var (
	ErrValidation                = NewDomainError(CodeValidation, KindValidation, "invalid request")
	ErrInvalidStoreID            = NewDomainError(CodeInvalidStoreID, KindValidation, "store id is malformed")
	ErrInvalidQRParams           = NewDomainError(CodeInvalidQRParams, KindValidation, "invalid QR code parameters")
	ErrQRCodeExpired             = NewDomainError(CodeQRCodeExpired, KindValidation, "QR code has expired, please scan a current code")
	ErrInvalidSessionToken       = NewDomainError(CodeInvalidSessionToken, KindValidation, "session token must be 32-64 characters")
	ErrStoreNotFound             = NewDomainError(CodeStoreNotFound, KindNotFound, "store not found or inactive")
	ErrSessionNotFound           = NewDomainError(CodeSessionNotFound, KindState, "verification session not found")
	ErrSessionExpired            = NewDomainError(CodeSessionExpired, KindState, "verification session has expired, please scan the QR code again")
	ErrSessionInvalidState       = NewDomainError(CodeSessionInvalidState, KindState, "verification session is no longer active")
	ErrVerificationAlreadyExists = NewDomainError(CodeVerificationAlreadyExists, KindState, "a verification has already been submitted for this session")
	ErrVerificationNotFound      = NewDomainError(CodeVerificationNotFound, KindNotFound, "verification not found")
	ErrTransactionNotFound       = NewDomainError(CodeTransactionNotFound, KindNotFound, "no matching transaction found for the given time")
	ErrRateLimitExceeded         = NewDomainError(CodeRateLimitExceeded, KindFraud, "too many attempts, please try again later")
	ErrFraudDetectionBlocked     = NewDomainError(CodeFraudDetectionBlocked, KindFraud, "request blocked by fraud protection")
	ErrUnauthorizedOperator      = NewDomainError(CodeUnauthorized, KindUnauthorized, "invalid or missing operator token")
)

// AsDomainError extracts a DomainError from err, if any.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
