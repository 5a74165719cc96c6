package handler

import (
	"fmt"
	"net/http"

	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type DocumentHandler struct {
	documentService service.DocumentService
	logger          *logrus.Logger
}

func NewDocumentHandler(documentService service.DocumentService, logger *logrus.Logger) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, logger: logger}
}

// RegisterRoutes mounts document routes on an authenticated group. upload runs in front of
// handlers that accept files.
func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup, upload ...gin.HandlerFunc) {
	withUpload := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, upload...), handler)
	}

	router.PUT("/requests/:id/proforma", withUpload(h.AttachProforma)...)
	router.POST("/requests/:id/submit-receipt", withUpload(h.SubmitReceipt)...)
	router.GET("/requests/:id/documents/:kind", h.DownloadDocument)
	router.POST("/documents/process", withUpload(h.ProcessDocument)...)
}

// AttachProforma replaces the proforma of a pending request
// @Summary      Attach proforma
// @Description  Stores the proforma and starts extraction in the background.
// @Tags         documents
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        id        path      string  true  "Request ID"
// @Param        proforma  formData  file    true  "PDF or image"
// @Success      200       {object}  response.Response{data=service.RequestResponse}
// @Failure      400       {object}  response.Response
// @Failure      403       {object}  response.Response
// @Failure      409       {object}  response.Response
// @Router       /api/requests/{id}/proforma [put]
func (h *DocumentHandler) AttachProforma(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	up, closeFn, err := requiredFile(c, "proforma")
	defer closeFn()
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	updated, err := h.documentService.AttachProforma(c.Request.Context(), actor, id, *up)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// SubmitReceipt records the receipt of an approved request
// @Summary      Submit receipt
// @Description  The creator uploads the receipt once the request is approved. Validation runs in the background and can only flag the request.
// @Tags         documents
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        id       path      string  true  "Request ID"
// @Param        receipt  formData  file    true  "PDF or image"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/submit-receipt [post]
func (h *DocumentHandler) SubmitReceipt(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}
	up, closeFn, err := requiredFile(c, "receipt")
	defer closeFn()
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	updated, err := h.documentService.SubmitReceipt(c.Request.Context(), actor, id, *up)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// DownloadDocument streams a stored proforma or receipt
// @Summary      Download document
// @Tags         documents
// @Security     BearerAuth
// @Produce      octet-stream
// @Param        id    path  string  true  "Request ID"
// @Param        kind  path  string  true  "proforma or receipt"
// @Success      200
// @Failure      404   {object}  response.Response
// @Router       /api/requests/{id}/documents/{kind} [get]
func (h *DocumentHandler) DownloadDocument(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := requestID(c)
	if !ok {
		return
	}

	rc, ref, err := h.documentService.OpenDocument(c.Request.Context(), actor, id, service.DocumentKind(c.Param("kind")))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, ref.Size, ref.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", ref.Filename),
	})
}

// ProcessDocument extracts data from a document without storing it
// @Summary      Process document
// @Description  Runs extraction synchronously. When extraction is unavailable the result is empty and carries a warning.
// @Tags         documents
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        file  formData  file  true  "PDF or image"
// @Success      200   {object}  response.Response{data=service.ProcessResult}
// @Failure      400   {object}  response.Response
// @Router       /api/documents/process [post]
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	up, closeFn, err := requiredFile(c, "file")
	defer closeFn()
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	result, err := h.documentService.Process(c.Request.Context(), actor, *up)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
