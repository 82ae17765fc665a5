package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/middleware"
	appErr "github.com/xxxsen/ragdrive/internal/pkg/errors"
	"github.com/xxxsen/ragdrive/internal/pkg/response"
)

const (
	msgFolderNotSet       = "Folder ID not set"
	msgDocumentsNotLoaded = "Documents are not loaded. Please set the folder ID again."
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	fields := []zap.Field{
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	}
	// Querying before ingestion is a client ordering issue, not a fault.
	if appErr.IsNotReady(err) {
		logutil.GetLogger(c.Request.Context()).Warn("request not ready", fields...)
	} else {
		logutil.GetLogger(c.Request.Context()).Error("request failed", fields...)
	}
	switch {
	case errors.Is(err, appErr.ErrFolderNotSet):
		response.Error(c, http.StatusBadRequest, msgFolderNotSet)
	case errors.Is(err, appErr.ErrDocumentsNotLoaded):
		response.Error(c, http.StatusInternalServerError, msgDocumentsNotLoaded)
	case errors.Is(err, appErr.ErrInvalid), errors.Is(err, appErr.ErrEmptyCorpus):
		response.Error(c, http.StatusBadRequest, err.Error())
	case appErr.IsNotFound(err):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, err.Error())
	}
}
