package handlers

import (
	"errors"
	"io"
	"log"

	"propdesk/internal/core/domain"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/response"
	"propdesk/internal/pkg/safelog"

	"github.com/gofiber/fiber/v2"
)

// LinkHandler serves the token-scoped contractor pages
type LinkHandler struct {
	scheduleService *services.ScheduleService
	invoiceService  *services.InvoiceService
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(scheduleService *services.ScheduleService, invoiceService *services.InvoiceService) *LinkHandler {
	return &LinkHandler{
		scheduleService: scheduleService,
		invoiceService:  invoiceService,
	}
}

// ============================================================
// Schedule links
// ============================================================

// GetSchedule resolves a schedule link
// @Summary Resolve schedule link
// @Tags Links
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} response.Response{data=domain.ScheduleView}
// @Failure 404 {object} response.Response
// @Router /links/schedule/{token} [get]
func (h *LinkHandler) GetSchedule(c *fiber.Ctx) error {
	view, err := h.scheduleService.View(c.UserContext(), c.Params("token"))
	if err != nil {
		return linkError(c, err, "Failed to load scheduling request")
	}
	return response.Success(c, "Scheduling request retrieved", view)
}

// SubmitSchedule records the contractor's scheduling decision
// @Summary Submit scheduling decision
// @Tags Links
// @Accept json
// @Produce json
// @Param token path string true "Link token"
// @Param body body domain.SchedulingDecisionRequest true "Decision"
// @Success 200 {object} response.Response{data=domain.SchedulingAck}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /links/schedule/{token} [post]
func (h *LinkHandler) SubmitSchedule(c *fiber.Ctx) error {
	var req domain.SchedulingDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	ack, err := h.scheduleService.Decide(c.UserContext(), c.Params("token"), &req)
	if err != nil {
		return linkError(c, err, "Failed to record scheduling decision")
	}

	message := "Appointment confirmed"
	if ack.Action == domain.ActionPropose {
		message = "New time proposed to the tenant"
	}
	return response.Success(c, message, ack)
}

// ============================================================
// Invoice links
// ============================================================

// GetInvoice resolves an invoice link
// @Summary Resolve invoice link
// @Tags Links
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} response.Response{data=domain.InvoiceView}
// @Failure 404 {object} response.Response
// @Router /links/invoice/{token} [get]
func (h *LinkHandler) GetInvoice(c *fiber.Ctx) error {
	view, err := h.invoiceService.View(c.UserContext(), c.Params("token"))
	if err != nil {
		return linkError(c, err, "Failed to load invoice request")
	}
	return response.Success(c, "Invoice request retrieved", view)
}

// GetAvailability reports whether the invoice upload is open
// @Summary Invoice availability
// @Tags Links
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} response.Response{data=domain.Availability}
// @Failure 404 {object} response.Response
// @Router /links/invoice/{token}/availability [get]
func (h *LinkHandler) GetAvailability(c *fiber.Ctx) error {
	avail, err := h.invoiceService.Availability(c.UserContext(), c.Params("token"))
	if err != nil {
		return linkError(c, err, "Failed to check invoice availability")
	}
	return response.Success(c, avail.Message, avail)
}

// UploadInvoice stores the invoice document
// @Summary Upload invoice document
// @Tags Links
// @Accept multipart/form-data
// @Produce json
// @Param token path string true "Link token"
// @Param file formData file true "PDF, JPEG or PNG up to 10 MB"
// @Success 201 {object} response.Response{data=domain.UploadResult}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /links/invoice/{token}/upload [post]
func (h *LinkHandler) UploadInvoice(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return response.ValidationFailed(c, "file", "please attach your invoice file")
	}
	if header.Size > services.MaxUploadBytes {
		return response.ValidationFailed(c, "file", "file is too large, the maximum size is 10 MB")
	}

	f, err := header.Open()
	if err != nil {
		return response.BadRequest(c, "Could not read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, services.MaxUploadBytes+1))
	if err != nil {
		return response.BadRequest(c, "Could not read uploaded file")
	}

	result, err := h.invoiceService.Upload(c.UserContext(), c.Params("token"), data)
	if err != nil {
		return linkError(c, err, "Failed to store invoice file")
	}
	return response.Created(c, "Invoice file uploaded", result)
}

// SubmitInvoice records the invoice
// @Summary Submit invoice
// @Tags Links
// @Accept json
// @Produce json
// @Param token path string true "Link token"
// @Param body body domain.InvoiceSubmissionRequest true "Invoice"
// @Success 201 {object} response.Response{data=domain.InvoiceReceipt}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /links/invoice/{token} [post]
func (h *LinkHandler) SubmitInvoice(c *fiber.Ctx) error {
	var req domain.InvoiceSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationFailed(c, "amount", "amount must be a number")
	}

	receipt, err := h.invoiceService.Submit(c.UserContext(), c.Params("token"), &req)
	if err != nil {
		return linkError(c, err, "Failed to submit invoice")
	}

	message := "Invoice submitted for review"
	if receipt.AutoApproved {
		message = "Invoice submitted and approved"
	}
	return response.Created(c, message, receipt)
}

// linkError maps link workflow errors onto the response envelope
func linkError(c *fiber.Ctx, err error, fallback string) error {
	if ve, ok := domain.AsValidation(err); ok {
		return response.ValidationFailed(c, ve.Field, ve.Message)
	}
	switch {
	case errors.Is(err, domain.ErrTokenInvalid):
		return response.NotFound(c, "This link is invalid or has expired")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return response.Locked(c, string(domain.ReasonAlreadySubmitted), "This has already been submitted")
	case errors.Is(err, domain.ErrNotAvailable):
		return response.Locked(c, string(domain.ReasonJobNotCompleted), "Invoice upload is not available yet")
	default:
		log.Printf("❌ %s [%s]: %v", fallback, safelog.MaskToken(c.Params("token")), err)
		return response.InternalServerError(c, fallback)
	}
}
