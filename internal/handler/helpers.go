package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case appErr.IsNotFound(err):
		response.Error(c, http.StatusNotFound, "not_found", "not found")
	case appErr.IsUnsupportedFormat(err):
		response.Error(c, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case appErr.IsConfiguration(err):
		response.Error(c, http.StatusBadRequest, "configuration", err.Error())
	case appErr.IsProvider(err):
		response.Error(c, http.StatusBadGateway, "provider", "upstream provider error")
	case appErr.IsInvalid(err):
		response.Error(c, http.StatusBadRequest, "invalid", err.Error())
	case appErr.IsIndexUnavailable(err):
		response.Error(c, http.StatusServiceUnavailable, "index_unavailable", "vector index unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
