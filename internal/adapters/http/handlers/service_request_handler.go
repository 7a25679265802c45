package handlers

import (
	"errors"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/core/approval"
	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/pagination"
	"propdesk/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ServiceRequestHandler handles the management endpoints
type ServiceRequestHandler struct {
	requestService *services.ServiceRequestService
	invoiceService *services.InvoiceService
}

// NewServiceRequestHandler creates a new service request handler
func NewServiceRequestHandler(requestService *services.ServiceRequestService, invoiceService *services.InvoiceService) *ServiceRequestHandler {
	return &ServiceRequestHandler{
		requestService: requestService,
		invoiceService: invoiceService,
	}
}

// ServiceRequestResponse is a service request with its approval threshold
type ServiceRequestResponse struct {
	*models.ServiceRequest
	ApprovalThreshold decimal.Decimal `json:"approval_threshold"`
}

func toServiceRequestResponse(req *models.ServiceRequest) *ServiceRequestResponse {
	return &ServiceRequestResponse{
		ServiceRequest:    req,
		ApprovalThreshold: approval.Threshold(domain.ServiceType(req.RequestType), domain.Priority(req.Priority)),
	}
}

// IssueLinkRequest represents issue link request body
type IssueLinkRequest struct {
	Purpose string `json:"purpose"`
}

// List lists service requests
// @Summary List service requests
// @Tags ServiceRequests
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Response
// @Router /service-requests [get]
func (h *ServiceRequestHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)

	reqs, total, err := h.requestService.List(c.UserContext(), c.Query("status"), params.Offset, params.Limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list service requests")
	}

	items := make([]*ServiceRequestResponse, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, toServiceRequestResponse(req))
	}

	return response.Success(c, "Service requests retrieved", pagination.NewPage(items, params, total))
}

// Create records a tenant service request
// @Summary Create service request
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateServiceRequestInput true "Service request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /service-requests [post]
func (h *ServiceRequestHandler) Create(c *fiber.Ctx) error {
	var req services.CreateServiceRequestInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	created, err := h.requestService.Create(c.UserContext(), &req)
	if err != nil {
		if ve, ok := domain.AsValidation(err); ok {
			return response.ValidationFailed(c, ve.Field, ve.Message)
		}
		return response.InternalServerError(c, "Failed to create service request")
	}

	return response.Created(c, "Service request created", toServiceRequestResponse(created))
}

// Get returns one service request
// @Summary Get service request
// @Tags ServiceRequests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Service request ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /service-requests/{id} [get]
func (h *ServiceRequestHandler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid service request ID")
	}

	req, err := h.requestService.GetByID(c.UserContext(), uint(id))
	if err != nil {
		return h.requestError(c, err, "Failed to load service request")
	}

	return response.Success(c, "Service request retrieved", toServiceRequestResponse(req))
}

// IssueLink mints a schedule or invoice link
// @Summary Issue contractor link
// @Tags ServiceRequests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Service request ID"
// @Param body body IssueLinkRequest true "Purpose"
// @Success 201 {object} response.Response{data=services.IssuedLink}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /service-requests/{id}/links [post]
func (h *ServiceRequestHandler) IssueLink(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid service request ID")
	}

	var req IssueLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	link, err := h.requestService.IssueLink(c.UserContext(), uint(id), domain.TokenPurpose(req.Purpose))
	if err != nil {
		return h.requestError(c, err, "Failed to issue link")
	}

	return response.Created(c, "Link issued", link)
}

// Complete marks the job as done
// @Summary Mark job complete
// @Tags ServiceRequests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Service request ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /service-requests/{id}/complete [post]
func (h *ServiceRequestHandler) Complete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return response.BadRequest(c, "Invalid service request ID")
	}

	req, err := h.requestService.MarkCompleted(c.UserContext(), uint(id))
	if err != nil {
		return h.requestError(c, err, "Failed to mark job complete")
	}

	return response.Success(c, "Job marked complete", toServiceRequestResponse(req))
}

// ListInvoices lists submitted invoices
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param status query string false "auto_approved or pending_review"
// @Success 200 {object} response.Response
// @Router /invoices [get]
func (h *ServiceRequestHandler) ListInvoices(c *fiber.Ctx) error {
	params := pagination.GetParams(c)

	invoices, total, err := h.invoiceService.List(c.UserContext(), c.Query("status"), params.Offset, params.Limit)
	if err != nil {
		if ve, ok := domain.AsValidation(err); ok {
			return response.ValidationFailed(c, ve.Field, ve.Message)
		}
		return response.InternalServerError(c, "Failed to list invoices")
	}

	return response.Success(c, "Invoices retrieved", pagination.NewPage(invoices, params, total))
}

func (h *ServiceRequestHandler) requestError(c *fiber.Ctx, err error, fallback string) error {
	if ve, ok := domain.AsValidation(err); ok {
		return response.ValidationFailed(c, ve.Field, ve.Message)
	}
	switch {
	case errors.Is(err, services.ErrRequestNotFound):
		return response.NotFound(c, "Service request not found")
	case errors.Is(err, services.ErrAlreadyCompleted):
		return response.Conflict(c, "Job is already marked complete")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return response.Conflict(c, "This step has already been completed for the request")
	default:
		return response.InternalServerError(c, fallback)
	}
}
