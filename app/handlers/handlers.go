// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/skyportal/source-query/app/dto"
	"github.com/skyportal/source-query/app/middleware"
	businessflow "github.com/skyportal/source-query/business_flow"
	"github.com/skyportal/source-query/utils"
)

const defaultRequestTimeout = 60 * time.Second

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validateRequest runs the struct tags of req and reports every failing field
func validateRequest(v *validator.Validate, req any) []string {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// writeQueryError maps a failed search onto its HTTP status. Caller mistakes are 4xx with the
// offending parameter when known, backend failures are 5xx without internals.
func writeQueryError(c fiber.Ctx, err error) error {
	switch {
	case businessflow.IsValidation(err):
		var details any
		if ve, ok := businessflow.AsValidationError(err); ok {
			details = fiber.Map{"param": ve.Param, "reason": ve.Message}
		}
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameter", "VALIDATION_ERROR", details)
	case businessflow.IsPageOutOfRange(err):
		return errorResponse(c, fiber.StatusBadRequest, businessflow.ErrPageOutOfRange.Error(), "PAGE_OUT_OF_RANGE", nil)
	case businessflow.IsTooManyCandidates(err):
		return errorResponse(c, fiber.StatusBadRequest, "Too many candidates in the requested area, narrow the search", "TOO_MANY_CANDIDATES", nil)
	case businessflow.IsGroupAccessDenied(err):
		return errorResponse(c, fiber.StatusForbidden, "Requested group is not accessible", "GROUP_ACCESS_DENIED", nil)
	case businessflow.IsLocalizationNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Localization not found", "LOCALIZATION_NOT_FOUND", nil)
	case businessflow.IsSpatialCatalogNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, "Spatial catalog entry not found", "SPATIAL_CATALOG_NOT_FOUND", nil)
	case businessflow.IsQueryTimedOut(err):
		return errorResponse(c, fiber.StatusGatewayTimeout, "Query timed out, narrow the search", "QUERY_TIMED_OUT", nil)
	default:
		return errorResponse(c, fiber.StatusInternalServerError, "Query failed", "QUERY_FAILED", nil)
	}
}

// requestPrincipal returns the authenticated principal or writes a 401
func requestPrincipal(c fiber.Ctx) (businessflow.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(c)
	if !ok {
		_ = errorResponse(c, fiber.StatusUnauthorized, "Principal not found in context", "MISSING_PRINCIPAL", nil)
	}
	return p, ok
}

func requestMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	return metadata
}

func createRequestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}
