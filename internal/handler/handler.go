package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"procurement/internal/apperror"
	"procurement/internal/identity"
	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// fail writes err using the status its kind maps to. Internal errors are logged and hidden.
func fail(c *gin.Context, logger *logrus.Logger, err error) {
	status := apperror.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		c.JSON(status, response.Error(status, "internal server error"))
		return
	}
	c.JSON(status, response.ErrorWithCode(status, apperror.CodeOf(err), err.Error()))
}

func badRequest(c *gin.Context, format string, args ...any) {
	err := apperror.Wrap(apperror.ErrInvalidInput, format, args...)
	c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.CodeOf(err), err.Error()))
}

func currentActor(c *gin.Context) (identity.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHENTICATED", "Authorization is missing"))
	}
	return actor, ok
}

// requestID parses the :id path parameter. Malformed IDs cannot name a request.
func requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.ErrorWithCode(http.StatusNotFound,
			apperror.CodeOf(apperror.ErrRequestNotFound), apperror.ErrRequestNotFound.Error()))
		return uuid.Nil, false
	}
	return id, true
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == gin.MIMEMultipartPOSTForm
}

// formFile opens an optional multipart file. The returned closer is never nil.
func formFile(c *gin.Context, field string) (*service.Upload, func(), error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperror.Wrap(apperror.ErrInvalidInput, "could not read %s: %v", field, err)
	}
	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*service.Upload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, apperror.Wrap(apperror.ErrInvalidInput, "could not open %s: %v", fh.Filename, err)
	}
	return &service.Upload{Filename: fh.Filename, Content: f}, func() { _ = f.Close() }, nil
}

// requiredFile is formFile for uploads the operation cannot do without.
func requiredFile(c *gin.Context, field string) (*service.Upload, func(), error) {
	up, closeFn, err := formFile(c, field)
	if err == nil && up == nil {
		err = apperror.Wrap(apperror.ErrInvalidInput, "%s file is required", field)
	}
	return up, closeFn, err
}
