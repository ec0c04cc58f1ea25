package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CalilDrissi/virtus/internal/pkg/response"
	"github.com/CalilDrissi/virtus/internal/service"
)

type RAGHandler struct {
	queries *service.QueryService
}

func NewRAGHandler(queries *service.QueryService) *RAGHandler {
	return &RAGHandler{queries: queries}
}

type queryRequest struct {
	Query         string   `json:"query" binding:"required"`
	TopK          int      `json:"top_k"`
	DataSourceIDs []string `json:"data_source_ids"`
}

func (h *RAGHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "query is required")
		return
	}
	result, err := h.queries.Query(c.Request.Context(), c.Param("model_id"), req.Query, req.TopK, req.DataSourceIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
