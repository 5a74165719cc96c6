package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/internal/workflow"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RequestHandler struct {
	requestService  service.RequestService
	approvalService service.ApprovalService
	logger          *logrus.Logger
}

func NewRequestHandler(requestService service.RequestService, approvalService service.ApprovalService, logger *logrus.Logger) *RequestHandler {
	return &RequestHandler{
		requestService:  requestService,
		approvalService: approvalService,
		logger:          logger,
	}
}

// RegisterRoutes mounts the request routes on an authenticated group. upload runs in front of
// handlers that accept files.
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup, upload ...gin.HandlerFunc) {
	withUpload := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, upload...), handler)
	}

	requests := router.Group("/requests")
	{
		requests.POST("", withUpload(h.CreateRequest)...)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PUT("/:id", withUpload(h.UpdateRequest)...)
		requests.PATCH("/:id", withUpload(h.UpdateRequest)...)
		requests.DELETE("/:id", h.DeleteRequest)
		requests.PATCH("/:id/approve", h.ApproveRequest)
		requests.PATCH("/:id/reject", h.RejectRequest)
		requests.GET("/:id/history", h.GetHistory)
	}
}

type createRequestPayload struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount" swaggertype:"string" example:"1200.00"`
}

type updateRequestPayload struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Amount      *json.Number `json:"amount" swaggertype:"string"`
}

type approvePayload struct {
	Comments string `json:"comments"`
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

// CreateRequest opens a purchase request
// @Summary      Create purchase request
// @Description  Staff open a request. Send JSON, or multipart with an optional proforma file.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        payload   body      createRequestPayload  false  "Request fields (JSON)"
// @Param        proforma  formData  file                  false  "Proforma invoice (multipart)"
// @Success      201       {object}  response.Response{data=service.RequestResponse}
// @Failure      400       {object}  response.Response
// @Failure      403       {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var input service.CreateRequestInput
	var proforma *service.Upload
	if isMultipart(c) {
		input = service.CreateRequestInput{
			Title:       c.PostForm("title"),
			Description: c.PostForm("description"),
			Amount:      c.PostForm("amount"),
		}
		up, closeFn, err := formFile(c, "proforma")
		defer closeFn()
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		proforma = up
	} else {
		var req createRequestPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request payload: %v", err)
			return
		}
		input = service.CreateRequestInput{Title: req.Title, Description: req.Description, Amount: req.Amount.String()}
	}

	created, err := h.requestService.Create(c.Request.Context(), actor, input, proforma)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, created))
}

// ListRequests returns the requests visible to the caller
// @Summary      List purchase requests
// @Description  Staff see their own requests; approvers and finance see all.
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        status           query     string  false  "pending, approved or rejected"
// @Param        q                query     string  false  "Search title and description"
// @Param        receipt_flagged  query     bool    false  "Only requests whose receipt did or did not match"
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Items per page (default 20)"
// @Success      200              {object}  response.Response{data=response.Page}
// @Failure      400              {object}  response.Response
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	filter := service.ListFilter{
		Query: c.Query("q"),
		Page:  params.Page,
		Limit: params.Limit,
	}
	if raw := c.Query("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			badRequest(c, "unknown status %q", raw)
			return
		}
		filter.Status = status
	}
	if raw := c.Query("receipt_flagged"); raw != "" {
		flagged, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "receipt_flagged must be true or false")
			return
		}
		filter.ReceiptFlagged = &flagged
	}

	items, total, err := h.requestService.List(c.Request.Context(), actor, filter)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, response.Page{
		Items: items,
		Total: total,
		Page:  params.Page,
		Limit: params.Limit,
	}))
}

// GetRequest returns one request with its approvals
// @Summary      Get purchase request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.requestService.Get(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// UpdateRequest edits a pending request
// @Summary      Update purchase request
// @Description  The creator may change title, description, amount or proforma while the request is pending.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json,mpfd
// @Produce      json
// @Param        id        path      string                true   "Request ID"
// @Param        payload   body      updateRequestPayload  false  "Fields to change (JSON)"
// @Param        proforma  formData  file                  false  "Replacement proforma (multipart)"
// @Success      200       {object}  response.Response{data=service.RequestResponse}
// @Failure      400       {object}  response.Response
// @Failure      403       {object}  response.Response
// @Failure      404       {object}  response.Response
// @Failure      409       {object}  response.Response
// @Router       /api/requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	var input service.UpdateRequestInput
	var proforma *service.Upload
	if isMultipart(c) {
		input = service.UpdateRequestInput{
			Title:       optionalForm(c, "title"),
			Description: optionalForm(c, "description"),
			Amount:      optionalForm(c, "amount"),
		}
		up, closeFn, err := formFile(c, "proforma")
		defer closeFn()
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		proforma = up
	} else {
		var req updateRequestPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request payload: %v", err)
			return
		}
		input = service.UpdateRequestInput{Title: req.Title, Description: req.Description}
		if req.Amount != nil {
			amount := req.Amount.String()
			input.Amount = &amount
		}
	}

	updated, err := h.requestService.Update(c.Request.Context(), actor, id, input, proforma)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// DeleteRequest removes a pending request
// @Summary      Delete purchase request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), actor, id); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"id": id, "deleted": true}))
}

// ApproveRequest records an approval
// @Summary      Approve purchase request
// @Description  Records the caller's approval at their level. The request is approved once both levels approve.
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string          true   "Request ID"
// @Param        payload  body      approvePayload  false  "Optional comments"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/approve [patch]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	var req approvePayload
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.decide(c, workflow.Approve, req.Comments)
}

// RejectRequest records a rejection
// @Summary      Reject purchase request
// @Description  Any single rejection rejects the request. A reason is required.
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string         true  "Request ID"
// @Param        payload  body      rejectPayload  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/reject [patch]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	var req rejectPayload
	if !bindOptionalJSON(c, &req) {
		return
	}
	h.decide(c, workflow.Reject, req.Reason)
}

func (h *RequestHandler) decide(c *gin.Context, decision workflow.Decision, comments string) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	decided, err := h.approvalService.Decide(c.Request.Context(), actor, id, decision, comments)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, decided))
}

// GetHistory returns the audit trail of a request
// @Summary      Request history
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.AuditLog}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id}/history [get]
func (h *RequestHandler) GetHistory(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	logs, err := h.requestService.History(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}

func optionalForm(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, out interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		badRequest(c, "invalid request payload: %v", err)
		return false
	}
	return true
}
