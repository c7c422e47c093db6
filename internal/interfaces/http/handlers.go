package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/application/service"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/ticket-workflow/internal/domain/workflow"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	config ServerConfig
	now    func() time.Time
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, config ServerConfig, logger Logger) *Handlers {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultServerConfig().MaxUploadBytes
	}
	return &Handlers{
		deps:   deps,
		config: config,
		now:    time.Now,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ReviewFieldRequest is the body of PATCH /api/tickets/:id/review
type ReviewFieldRequest struct {
	Field string      `json:"field" binding:"required"`
	Value interface{} `json:"value"`
}

// TransitionRequest is the body of POST /api/tickets/:id/transition
type TransitionRequest struct {
	Trigger string `json:"trigger" binding:"required"`
}

// OCRCallbackRequest is the body pushed by the external OCR job
type OCRCallbackRequest struct {
	TicketID string                 `json:"ticket_id"`
	Fields   map[string]interface{} `json:"fields"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: h.now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// PayWeek handles GET /api/pay-week
func (h *Handlers) PayWeek(c *gin.Context) {
	status, err := h.deps.Tickets.PayWeek(h.now(), c.Query("date"))
	if err != nil {
		h.fail(c, "Failed to compute pay week", err)
		return
	}
	h.ok(c, status)
}

// ListTickets handles GET /api/tickets
func (h *Handlers) ListTickets(c *gin.Context) {
	filter, ok := h.ticketFilter(c)
	if !ok {
		return
	}
	tickets, err := h.deps.Tickets.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list tickets", err)
		return
	}
	if tickets == nil {
		tickets = []*entity.Ticket{}
	}
	h.ok(c, tickets)
}

// CreateTicket handles POST /api/tickets (multipart form, optional "file")
func (h *Handlers) CreateTicket(c *gin.Context) {
	sess := currentSession(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes+1<<20)

	form, err := parseTicketForm(c)
	if err != nil {
		h.fail(c, "Invalid ticket form", err)
		return
	}

	driverID := c.PostForm("driver_id")
	if sess.Role == entity.RoleDriver {
		driverID = sess.UserID
	}

	file, err := h.readUpload(c)
	if err != nil {
		h.fail(c, "Invalid ticket upload", err)
		return
	}

	ticket, err := h.deps.Tickets.Create(c.Request.Context(), service.CreateTicketInput{
		OrganizationID: sess.OrganizationID,
		DriverID:       driverID,
		TruckID:        c.PostForm("truck_id"),
		ActorID:        sess.UserID,
		Form:           form,
		File:           file,
		Now:            h.now(),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, Response{Success: true, Data: ticket})
	case ticket != nil && (errors.Is(err, service.ErrUploadFailed) || errors.Is(err, service.ErrOCRFailed)):
		h.logger.Error("Ticket created with partial failure", "ticket_id", ticket.ID, "error", err)
		c.JSON(http.StatusMultiStatus, Response{Success: false, Data: ticket, Error: publicMessage(err)})
	default:
		h.fail(c, "Failed to create ticket", err)
	}
}

// GetTicket handles GET /api/tickets/:id
func (h *Handlers) GetTicket(c *gin.Context) {
	detail, err := h.deps.Tickets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get ticket", err)
		return
	}
	h.ok(c, detail)
}

// LiveTicket handles GET /api/tickets/:id/live. It answers from the realtime
// cache, which holds broadcasts that arrived after the last store read, and
// falls back to the stored row when the ticket is not cached yet.
func (h *Handlers) LiveTicket(c *gin.Context) {
	id := c.Param("id")
	if h.deps.Live != nil {
		if e, ok := h.deps.Live.Get(id); ok {
			h.ok(c, e)
			return
		}
	}

	ticket, ok := c.Get(ctxTicket)
	t, _ := ticket.(*entity.Ticket)
	if !ok || t == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "ticket not found"})
		return
	}
	fields := map[string]interface{}{}
	for k, v := range t.OCR {
		fields[k] = v
	}
	h.ok(c, ticketcache.Entry{TicketID: t.ID, Status: t.Status, Fields: fields, UpdatedAt: t.UpdatedAt})
}

// ResubmitOCR handles POST /api/tickets/:id/ocr
func (h *Handlers) ResubmitOCR(c *gin.Context) {
	ticket, err := h.deps.OCR.Resubmit(c.Request.Context(), c.Param("id"), currentSession(c).UserID)
	if err != nil {
		h.fail(c, "Failed to resubmit OCR", err)
		return
	}
	h.ok(c, ticket)
}

// UpdateReviewField handles PATCH /api/tickets/:id/review
func (h *Handlers) UpdateReviewField(c *gin.Context) {
	if !h.requireStaff(c) {
		return
	}
	var req ReviewFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid review request", "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	row, err := h.deps.Review.UpdateField(c.Request.Context(), c.Param("id"), req.Field, req.Value, currentSession(c).UserID)
	if err != nil {
		h.fail(c, "Failed to update review field", err)
		return
	}
	h.ok(c, row)
}

// ApproveTicket handles POST /api/tickets/:id/approve
func (h *Handlers) ApproveTicket(c *gin.Context) {
	if !h.requireStaff(c) {
		return
	}
	result, err := h.deps.Approval.Approve(c.Request.Context(), c.Param("id"), currentSession(c).UserID)
	if err != nil {
		h.fail(c, "Failed to approve ticket", err)
		return
	}
	h.ok(c, result)
}

// TransitionTicket handles POST /api/tickets/:id/transition
func (h *Handlers) TransitionTicket(c *gin.Context) {
	if !h.requireStaff(c) {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	trigger, err := domainwf.ParseTrigger(req.Trigger)
	if err != nil {
		h.fail(c, "Invalid trigger", err)
		return
	}

	ticket, err := h.deps.Tickets.Transition(c.Request.Context(), c.Param("id"), trigger, currentSession(c).UserID)
	if err != nil {
		h.fail(c, "Failed to transition ticket", err)
		return
	}
	h.ok(c, ticket)
}

// ListReview handles GET /api/review
func (h *Handlers) ListReview(c *gin.Context) {
	filter, ok := h.ticketFilter(c)
	if !ok {
		return
	}
	rows, err := h.deps.Review.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list review rows", err)
		return
	}
	if rows == nil {
		rows = []*service.ReviewRow{}
	}
	h.ok(c, rows)
}

// ListCustomers handles GET /api/customers
func (h *Handlers) ListCustomers(c *gin.Context) {
	customers, err := h.deps.Review.Customers(c.Request.Context(), currentSession(c).OrganizationID)
	if err != nil {
		h.fail(c, "Failed to list customers", err)
		return
	}
	h.ok(c, customers)
}

// OCRCallback handles POST /api/ocr/callback
func (h *Handlers) OCRCallback(c *gin.Context) {
	var req OCRCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	ticket, err := h.deps.OCR.Complete(c.Request.Context(), req.TicketID, entity.OCRExtraction(req.Fields))
	if err != nil {
		h.fail(c, "Failed to ingest OCR result", err)
		return
	}
	h.ok(c, ticket)
}

// PayrollStatement handles GET /api/payroll/statement
func (h *Handlers) PayrollStatement(c *gin.Context) {
	sess := currentSession(c)
	driverID := c.Query("driver_id")
	if sess.Role == entity.RoleDriver {
		driverID = sess.UserID
	}

	file, err := h.deps.Payroll.Statement(c.Request.Context(), sess.OrganizationID, driverID, c.Query("week_of"))
	if err != nil {
		h.fail(c, "Failed to build pay statement", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// DownloadObject handles GET /storage/*path for signed URLs
func (h *Handlers) DownloadObject(c *gin.Context) {
	if h.deps.Files == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "not found"})
		return
	}
	path := strings.TrimPrefix(c.Param("path"), "/")

	if err := h.deps.Files.Verify(path, c.Query("expires"), c.Query("sig")); err != nil {
		h.fail(c, "Rejected storage download", err)
		return
	}
	content, err := h.deps.Files.Read(c.Request.Context(), path)
	if err != nil {
		h.logger.Error("Failed to read object", "path", path, "error", err)
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(content), content)
}

func (h *Handlers) ticketFilter(c *gin.Context) (entity.TicketFilter, bool) {
	sess := currentSession(c)
	filter := entity.TicketFilter{
		OrganizationID: sess.OrganizationID,
		DriverID:       c.Query("driver_id"),
		Limit:          defaultListLimit,
	}
	if sess.Role == entity.RoleDriver {
		filter.DriverID = sess.UserID
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				filter.Statuses = append(filter.Statuses, s)
			}
		}
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit", defaultListLimit); err != nil || filter.Limit <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid limit"})
		return filter, false
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil || filter.Offset < 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid offset"})
		return filter, false
	}
	return filter, true
}

func (h *Handlers) readUpload(c *gin.Context) (*service.Upload, error) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidField, err)
	}
	if header.Size > h.config.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", service.ErrInvalidField, h.config.MaxUploadBytes)
	}

	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.config.MaxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	return &service.Upload{Name: header.Filename, ContentType: contentType, Content: content}, nil
}

func (h *Handlers) requireStaff(c *gin.Context) bool {
	sess := currentSession(c)
	if sess == nil || sess.Role == entity.RoleDriver {
		c.JSON(http.StatusForbidden, Response{Success: false, Error: "not allowed for drivers"})
		return false
	}
	return true
}

func (h *Handlers) ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, Response{Success: false, Error: publicMessage(err)})
}

// statusFor maps sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoTicketSelected),
		errors.Is(err, service.ErrInvalidField),
		errors.Is(err, domainwf.ErrUnknownTrigger):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, realtime.ErrForbidden),
		errors.Is(err, storage.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, service.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, service.ErrTicketLocked),
		errors.Is(err, service.ErrNoImage):
		return http.StatusConflict
	case errors.Is(err, storage.ErrURLExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrOutsidePayWeek):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrOCRFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// publicMessage is the human-readable error text returned to clients
func publicMessage(err error) string {
	var stepErr *service.StepError
	switch {
	case statusFor(err) < http.StatusInternalServerError:
		return err.Error()
	case errors.As(err, &stepErr):
		return "approval failed at " + stepErr.Step
	case errors.Is(err, service.ErrOCRFailed):
		return service.ErrOCRFailed.Error()
	}
	return "internal server error"
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
