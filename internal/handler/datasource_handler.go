package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CalilDrissi/virtus/internal/model"
	"github.com/CalilDrissi/virtus/internal/pkg/response"
	"github.com/CalilDrissi/virtus/internal/service"
)

// maxUploadSize bounds a single document upload.
const maxUploadSize = 50 << 20

type DataSourceStore interface {
	Create(ctx context.Context, ds *model.DataSource) error
	Get(ctx context.Context, id, modelID string) (*model.DataSource, error)
	ListByModel(ctx context.Context, modelID string) ([]*model.DataSource, error)
}

type DocumentLister interface {
	ListByDataSource(ctx context.Context, dataSourceID string) ([]*model.Document, error)
}

type DataSourceHandler struct {
	dataSources DataSourceStore
	documents   DocumentLister
	ingest      *service.IngestService
}

func NewDataSourceHandler(dataSources DataSourceStore, documents DocumentLister, ingest *service.IngestService) *DataSourceHandler {
	return &DataSourceHandler{
		dataSources: dataSources,
		documents:   documents,
		ingest:      ingest,
	}
}

type createDataSourceRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	SourceType     string `json:"source_type"`
	Config         string `json:"config"`
	SubscriptionID string `json:"subscription_id"`
}

func (h *DataSourceHandler) Create(c *gin.Context) {
	var req createDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid", "name is required")
		return
	}
	sourceType := model.SourceType(req.SourceType)
	if sourceType == "" {
		sourceType = model.SourceTypeDocument
	}
	ds := &model.DataSource{
		ID:             uuid.NewString(),
		ModelID:        c.Param("model_id"),
		SubscriptionID: req.SubscriptionID,
		Name:           req.Name,
		Description:    req.Description,
		SourceType:     sourceType,
		Config:         req.Config,
		Status:         model.StatusPending,
	}
	if err := h.dataSources.Create(c.Request.Context(), ds); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ds)
}

func (h *DataSourceHandler) List(c *gin.Context) {
	list, err := h.dataSources.ListByModel(c.Request.Context(), c.Param("model_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *DataSourceHandler) Get(c *gin.Context) {
	ds, err := h.dataSources.Get(c.Request.Context(), c.Param("id"), c.Param("model_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ds)
}

func (h *DataSourceHandler) Delete(c *gin.Context) {
	err := h.ingest.DeleteDataSource(c.Request.Context(), c.Param("model_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Data source deleted"})
}

func (h *DataSourceHandler) ListDocuments(c *gin.Context) {
	if _, err := h.dataSources.Get(c.Request.Context(), c.Param("id"), c.Param("model_id")); err != nil {
		handleError(c, err)
		return
	}
	docs, err := h.documents.ListByDataSource(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DataSourceHandler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_file", "file is required")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "file too large, maximum size is 50MB")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_file", "failed to open file")
		return
	}
	defer opened.Close()
	content, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid_file", "failed to read file")
		return
	}

	result, err := h.ingest.UploadDocument(
		c.Request.Context(),
		c.Param("model_id"),
		c.Param("id"),
		file.Filename,
		file.Header.Get("Content-Type"),
		content,
	)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *DataSourceHandler) DeleteDocument(c *gin.Context) {
	if _, err := h.dataSources.Get(c.Request.Context(), c.Param("id"), c.Param("model_id")); err != nil {
		handleError(c, err)
		return
	}
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("model_id"), c.Param("document_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "Document deleted"})
}
