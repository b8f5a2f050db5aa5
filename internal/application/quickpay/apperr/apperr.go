// Package apperr maps domain errors to reason codes and application errors.
package apperr

import (
	"errors"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
)

type mapping struct {
	target error
	reason string
	build  func(message string, details ...string) *sharedErrors.AppError
}

var mappings = []mapping{
	{quickpay.ErrInvalidSignature, sharedErrors.ReasonInvalidSignature, sharedErrors.NewUnauthorizedError},
	{session.ErrSessionNotFound, sharedErrors.ReasonSessionNotFound, sharedErrors.NewNotFoundError},
	{session.ErrSessionInactive, sharedErrors.ReasonSessionInactive, sharedErrors.NewUnprocessableError},
	{session.ErrSessionExpired, sharedErrors.ReasonSessionExpired, sharedErrors.NewUnprocessableError},
	{session.ErrInsufficientSingleLimit, sharedErrors.ReasonInsufficientSingleLimit, sharedErrors.NewUnprocessableError},
	{session.ErrInsufficientDailyLimit, sharedErrors.ReasonInsufficientDailyLimit, sharedErrors.NewUnprocessableError},
	{quickpay.ErrDuplicatePaymentID, sharedErrors.ReasonDuplicatePaymentID, sharedErrors.NewConflictError},
	{quickpay.ErrPaymentNotFound, sharedErrors.ReasonPaymentNotFound, sharedErrors.NewNotFoundError},
	{quickpay.ErrNotCancellable, sharedErrors.ReasonNotCancellable, sharedErrors.NewConflictError},
	{quickpay.ErrRetryExhausted, sharedErrors.ReasonRetryExhausted, sharedErrors.NewUnprocessableError},
	{quickpay.ErrStaleRequestDropped, sharedErrors.ReasonStaleRequestDropped, sharedErrors.NewUnprocessableError},
	{quickpay.ErrSubmissionFailed, sharedErrors.ReasonSubmissionFailed, sharedErrors.NewInternalError},
}

// Reason returns the stable reason code for err, or internal_error.
func Reason(err error) string {
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.reason
		}
	}
	return sharedErrors.ReasonInternal
}

// IsBusinessRejection reports whether err is a session or quota rule violation,
// as opposed to an infrastructure failure.
func IsBusinessRejection(err error) bool {
	switch Reason(err) {
	case sharedErrors.ReasonSessionNotFound,
		sharedErrors.ReasonSessionInactive,
		sharedErrors.ReasonSessionExpired,
		sharedErrors.ReasonInsufficientSingleLimit,
		sharedErrors.ReasonInsufficientDailyLimit:
		return true
	}
	return false
}

// Translate converts a domain error to an AppError carrying its reason. Errors
// that are already AppErrors pass through. Anything unknown becomes a bare
// internal error so details do not leak.
func Translate(err error, details ...string) error {
	if err == nil {
		return nil
	}
	if sharedErrors.IsAppError(err) {
		return err
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return m.build(m.target.Error(), details...).WithReason(m.reason)
		}
	}
	return sharedErrors.NewInternalError("internal error").WithReason(sharedErrors.ReasonInternal)
}
