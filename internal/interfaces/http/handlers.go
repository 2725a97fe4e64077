package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/service"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	expenses  *service.ExpenseService
	approvals *service.ApprovalService
	finance   *service.FinanceService
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	expenses *service.ExpenseService,
	approvals *service.ApprovalService,
	finance *service.FinanceService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		expenses:  expenses,
		approvals: approvals,
		finance:   finance,
		logger:    logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateReport handles POST /api/expenses/reports
func (h *Handlers) CreateReport(c *gin.Context) {
	var dto createReportDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	input, details := dto.toInput()
	if details != nil {
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Error:   "request failed validation",
			Details: details,
		})
		return
	}

	view, err := h.expenses.CreateReport(c.Request.Context(), actorFrom(c), input)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: view})
}

// GetReport handles GET /api/expenses/reports/:id
func (h *Handlers) GetReport(c *gin.Context) {
	view, err := h.expenses.GetReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// UpdateItems handles PUT /api/expenses/reports/:id/items
func (h *Handlers) UpdateItems(c *gin.Context) {
	var dto updateItemsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	details := policy.NewResult()
	items := toItemInputs(dto.Items, details)
	if details.HasErrors() {
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Error:   "request failed validation",
			Details: details,
		})
		return
	}

	view, err := h.expenses.UpdateItems(c.Request.Context(), actorFrom(c), c.Param("id"), dto.ExpectedVersion, items)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// SubmitReport handles POST /api/expenses/reports/:id/submit
func (h *Handlers) SubmitReport(c *gin.Context) {
	var dto versionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	view, err := h.expenses.Submit(c.Request.Context(), actorFrom(c), c.Param("id"), dto.ExpectedVersion)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ResubmitReport handles POST /api/expenses/reports/:id/resubmit
func (h *Handlers) ResubmitReport(c *gin.Context) {
	var dto versionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	view, err := h.expenses.Resubmit(c.Request.Context(), actorFrom(c), c.Param("id"), dto.ExpectedVersion)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// EvaluateReport handles GET /api/expenses/reports/:id/policy
func (h *Handlers) EvaluateReport(c *gin.Context) {
	result, err := h.expenses.EvaluateReport(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RecordDecision handles POST /api/approvals/:report_id
func (h *Handlers) RecordDecision(c *gin.Context) {
	var dto decisionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	view, err := h.approvals.Decide(c.Request.Context(), actorFrom(c), c.Param("report_id"), service.DecisionInput{
		Decision:              models.Decision(dto.Decision),
		Comments:              dto.Comments,
		OverrideJustification: dto.OverrideJustification,
		ExpectedVersion:       dto.ExpectedVersion,
	})
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ManagerQueue handles GET /api/manager/queue
func (h *Handlers) ManagerQueue(c *gin.Context) {
	entries, err := h.approvals.Queue(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// FinalizeReports handles POST /api/finance/finalize
func (h *Handlers) FinalizeReports(c *gin.Context) {
	var dto finalizeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.badRequest(c, err)
		return
	}

	input := service.FinalizeInput{}
	for _, ref := range dto.Reports {
		input.Reports = append(input.Reports, service.FinalizeReportRef{
			ReportID:        ref.ReportID,
			ExpectedVersion: ref.ExpectedVersion,
		})
	}

	view, err := h.finance.Finalize(c.Request.Context(), actorFrom(c), input)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ListBatches handles GET /api/finance/batches
func (h *Handlers) ListBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	summaries, err := h.finance.ListBatches(c.Request.Context(), actorFrom(c), limit)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summaries})
}

// GetBatch handles GET /api/finance/batches/:id
func (h *Handlers) GetBatch(c *gin.Context) {
	view, err := h.finance.GetBatch(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   "invalid request body: " + err.Error(),
	})
}

// serviceError maps the service error taxonomy onto status codes
func (h *Handlers) serviceError(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.Error("Unclassified handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch svcErr.Kind {
	case service.KindValidation:
		status = http.StatusUnprocessableEntity
	case service.KindConflict, service.KindInvalidTransition:
		status = http.StatusConflict
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindInternal:
		h.logger.Error("Service failure", zap.Error(svcErr))
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{
		Success: false,
		Error:   svcErr.Message,
		Details: svcErr.Details,
	})
}
