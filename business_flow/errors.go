// Package businessflow contains the search engine use cases: parameter parsing, query
// composition, pagination and result hydration
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Input errors
	ErrValidation        = errors.New("invalid query parameter")
	ErrPageOutOfRange    = errors.New("Page number out of range.")
	ErrTooManyCandidates = errors.New("too many candidates for spatial query")
	ErrGroupAccessDenied = errors.New("group access denied")

	// Lookup errors
	ErrLocalizationNotFound   = errors.New("localization not found")
	ErrSpatialCatalogNotFound = errors.New("spatial catalog entry not found")

	// Backend errors
	ErrQueryTimedOut = errors.New("query timed out")
)

// ValidationError names the offending parameter. It unwraps to ErrValidation.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(param, format string, args ...any) *ValidationError {
	return &ValidationError{Param: param, Message: fmt.Sprintf(format, args...)}
}

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsPageOutOfRange(err error) bool {
	return errors.Is(err, ErrPageOutOfRange)
}

func IsTooManyCandidates(err error) bool {
	return errors.Is(err, ErrTooManyCandidates)
}

func IsGroupAccessDenied(err error) bool {
	return errors.Is(err, ErrGroupAccessDenied)
}

func IsLocalizationNotFound(err error) bool {
	return errors.Is(err, ErrLocalizationNotFound)
}

func IsSpatialCatalogNotFound(err error) bool {
	return errors.Is(err, ErrSpatialCatalogNotFound)
}

func IsQueryTimedOut(err error) bool {
	return errors.Is(err, ErrQueryTimedOut)
}

// AsValidationError extracts the parameter-level detail of a validation failure
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// errorKind labels err for metrics and logs
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsValidation(err):
		return "validation"
	case IsPageOutOfRange(err):
		return "page_out_of_range"
	case IsTooManyCandidates(err):
		return "too_many_candidates"
	case IsGroupAccessDenied(err):
		return "group_access_denied"
	case IsLocalizationNotFound(err), IsSpatialCatalogNotFound(err):
		return "not_found"
	case IsQueryTimedOut(err):
		return "timeout"
	default:
		return "backend"
	}
}
