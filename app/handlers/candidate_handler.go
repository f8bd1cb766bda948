package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/skyportal/source-query/app/dto"
	businessflow "github.com/skyportal/source-query/business_flow"
)

// CandidateHandlerInterface defines the contract for candidate search handlers
type CandidateHandlerInterface interface {
	ListCandidates(c fiber.Ctx) error
}

// CandidateHandler handles candidate search requests
type CandidateHandler struct {
	flow      businessflow.CandidateQueryFlow
	validator *validator.Validate
	timeout   time.Duration
}

func NewCandidateHandler(flow businessflow.CandidateQueryFlow, timeout time.Duration) *CandidateHandler {
	return &CandidateHandler{
		flow:      flow,
		validator: validator.New(),
		timeout:   timeout,
	}
}

// ListCandidates searches objects that passed the requester's alert filters
// @Summary List candidates
// @Tags Candidates
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListCandidatesResponse}
// @Router /api/v1/candidates [get]
func (h *CandidateHandler) ListCandidates(c fiber.Ctx) error {
	var req dto.ListCandidatesRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query string", "INVALID_REQUEST", err.Error())
	}
	if messages := validateRequest(h.validator, &req); messages != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	principal, ok := requestPrincipal(c)
	if !ok {
		return nil
	}

	ctx, cancel := createRequestContext(c, "/api/v1/candidates", h.timeout)
	defer cancel()

	res, err := h.flow.GetCandidates(ctx, principal, &req, requestMetadata(c))
	if err != nil {
		return writeQueryError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Candidates retrieved successfully", res)
}
