package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/skyportal/source-query/app/dto"
	businessflow "github.com/skyportal/source-query/business_flow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SourceHandlerInterface defines the contract for source search handlers
type SourceHandlerInterface interface {
	ListSources(c fiber.Ctx) error
	ExportSources(c fiber.Ctx) error
}

// SourceHandler handles source search requests
type SourceHandler struct {
	flow      businessflow.SourceQueryFlow
	validator *validator.Validate
	timeout   time.Duration
}

// NewSourceHandler creates a new source handler. A zero timeout uses the default.
func NewSourceHandler(flow businessflow.SourceQueryFlow, timeout time.Duration) *SourceHandler {
	return &SourceHandler{
		flow:      flow,
		validator: validator.New(),
		timeout:   timeout,
	}
}

// ListSources searches objects saved to the requester's groups
// @Summary List sources
// @Tags Sources
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ListSourcesResponse}
// @Failure 400 {object} dto.APIResponse "Invalid parameter or page out of range"
// @Failure 403 {object} dto.APIResponse "Group not accessible"
// @Failure 404 {object} dto.APIResponse "Localization or spatial catalog not found"
// @Failure 504 {object} dto.APIResponse "Query timed out"
// @Router /api/v1/sources [get]
func (h *SourceHandler) ListSources(c fiber.Ctx) error {
	req, ok := h.bind(c)
	if !ok {
		return nil
	}
	principal, ok := requestPrincipal(c)
	if !ok {
		return nil
	}

	ctx, cancel := createRequestContext(c, "/api/v1/sources", h.timeout)
	defer cancel()

	res, err := h.flow.GetSources(ctx, principal, req, requestMetadata(c))
	if err != nil {
		return writeQueryError(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Sources retrieved successfully", res)
}

// ExportSources returns the requested page of sources as an xlsx workbook
// @Summary Export sources
// @Tags Sources
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /api/v1/sources/export [get]
func (h *SourceHandler) ExportSources(c fiber.Ctx) error {
	req, ok := h.bind(c)
	if !ok {
		return nil
	}
	principal, ok := requestPrincipal(c)
	if !ok {
		return nil
	}

	ctx, cancel := createRequestContext(c, "/api/v1/sources/export", h.timeout)
	defer cancel()

	out, err := h.flow.ExportSources(ctx, principal, req, requestMetadata(c))
	if err != nil {
		return writeQueryError(c, err)
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="sources.xlsx"`)
	return c.Status(fiber.StatusOK).Send(out)
}

// bind parses and validates the query string, writing a 400 on failure
func (h *SourceHandler) bind(c fiber.Ctx) (*dto.ListSourcesRequest, bool) {
	var req dto.ListSourcesRequest
	if err := c.Bind().Query(&req); err != nil {
		_ = errorResponse(c, fiber.StatusBadRequest, "Invalid query string", "INVALID_REQUEST", err.Error())
		return nil, false
	}
	if messages := validateRequest(h.validator, &req); messages != nil {
		_ = errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
		return nil, false
	}
	return &req, true
}
