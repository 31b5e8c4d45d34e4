// Package businessflow contains the core business logic and use cases of the partner integration
package businessflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Business flow error constants
var (
	// Configuration errors
	ErrConfigNotFound      = errors.New("integration config not found")
	ErrIntegrationInactive = errors.New("integration is inactive")
	ErrConfigInvalid       = errors.New("integration config is invalid")

	// Admission errors
	ErrUserRateLimited   = errors.New("user rate limit exceeded")
	ErrGlobalRateLimited = errors.New("global api rate limit exceeded")

	// Payload errors
	ErrInvalidUserData = errors.New("invalid user data")
	ErrConsentRequired = errors.New("data sharing consent is required")

	// Delivery log and queue errors
	ErrDeliveryLogNotFound     = errors.New("delivery log not found")
	ErrQueueJobNotFound        = errors.New("queue job not found")
	ErrInvalidStatusTransition = errors.New("invalid delivery status transition")
	ErrEnqueueFailed           = errors.New("failed to enqueue delivery retry")

	// Admin errors
	ErrAdminNotFound     = errors.New("admin not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrInvalidToken      = errors.New("invalid token")

	// Listing errors
	ErrInvalidPage           = errors.New("invalid page")
	ErrInvalidPageSize       = errors.New("invalid page size")
	ErrStartDateAfterEndDate = errors.New("start date after end date")
)

// BusinessError represents a business logic error with additional context
type BusinessError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewBusinessErrorf creates a new business error with formatted message
func NewBusinessErrorf(code, format string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IntegrationErrorKind classifies a failed delivery
type IntegrationErrorKind string

const (
	KindNetworkError    IntegrationErrorKind = "NETWORK_ERROR"
	KindAuthError       IntegrationErrorKind = "AUTH_ERROR"
	KindValidationError IntegrationErrorKind = "VALIDATION_ERROR"
	KindRateLimit       IntegrationErrorKind = "RATE_LIMIT"
	KindServerError     IntegrationErrorKind = "SERVER_ERROR"
	KindConfigError     IntegrationErrorKind = "CONFIG_ERROR"
	KindConsentError    IntegrationErrorKind = "CONSENT_ERROR"
)

// IntegrationError is a delivery failure with its retry classification.
// Message is user facing and is what gets stored on the delivery log.
type IntegrationError struct {
	Kind       IntegrationErrorKind
	Message    string
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

func NewIntegrationError(kind IntegrationErrorKind, message string, retryable bool, err error) *IntegrationError {
	return &IntegrationError{Kind: kind, Message: message, Retryable: retryable, Err: err}
}

// ClassifyHTTPStatus maps a partner response status to a kind and its retryability
func ClassifyHTTPStatus(status int) (IntegrationErrorKind, bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthError, false
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidationError, false
	case status == http.StatusTooManyRequests:
		return KindRateLimit, true
	case status >= http.StatusInternalServerError:
		return KindServerError, true
	default:
		return KindNetworkError, true
	}
}

// IsRetryable reports whether err carries a retryable integration failure
func IsRetryable(err error) bool {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// AsIntegrationError extracts the integration failure wrapped in err
func AsIntegrationError(err error) (*IntegrationError, bool) {
	var ie *IntegrationError
	ok := errors.As(err, &ie)
	return ie, ok
}

// Error checking helpers

func IsConfigNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

func IsIntegrationInactive(err error) bool {
	return errors.Is(err, ErrIntegrationInactive)
}

func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

func IsUserRateLimited(err error) bool {
	return errors.Is(err, ErrUserRateLimited)
}

func IsGlobalRateLimited(err error) bool {
	return errors.Is(err, ErrGlobalRateLimited)
}

func IsInvalidUserData(err error) bool {
	return errors.Is(err, ErrInvalidUserData)
}

func IsConsentRequired(err error) bool {
	return errors.Is(err, ErrConsentRequired)
}

func IsDeliveryLogNotFound(err error) bool {
	return errors.Is(err, ErrDeliveryLogNotFound)
}

func IsQueueJobNotFound(err error) bool {
	return errors.Is(err, ErrQueueJobNotFound)
}

func IsInvalidStatusTransition(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition)
}

func IsEnqueueFailed(err error) bool {
	return errors.Is(err, ErrEnqueueFailed)
}

func IsAdminNotFound(err error) bool {
	return errors.Is(err, ErrAdminNotFound)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}
