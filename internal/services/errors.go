package services

import "fmt"

const (
	CodePremiumRequired     = "PREMIUM_REQUIRED"
	CodeSubscriptionExpired = "SUBSCRIPTION_EXPIRED"
	ActionRedirectSubscribe = "REDIRECT_SUBSCRIBE"
)

type ValidationError struct {
	Fields  map[string]string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation error"
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// ForbiddenError carries a machine-readable reason and the client action
// that resolves it.
type ForbiddenError struct {
	Code    string
	Message string
	Action  string
}

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// UpstreamError wraps a failed or malformed call to an external provider.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Err: err}
}
