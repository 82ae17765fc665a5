package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdrive/internal/model"
	"github.com/xxxsen/ragdrive/internal/pkg/response"
)

const msgFolderIndexed = "Folder ID set and documents indexed successfully"

type RAGService interface {
	Ingest(ctx context.Context, folderID string) (*model.IngestResult, error)
	Answer(ctx context.Context, question string) (*model.Answer, error)
	Status() model.Status
}

type RAGHandler struct {
	svc RAGService
}

func NewRAGHandler(svc RAGService) *RAGHandler {
	return &RAGHandler{svc: svc}
}

type queryRequest struct {
	Query *string `json:"query"`
}

// SetFolder ingests the folder named by the folder_id_input form field.
func (h *RAGHandler) SetFolder(c *gin.Context) {
	folderID := strings.TrimSpace(c.PostForm("folder_id_input"))
	if folderID == "" {
		response.Error(c, http.StatusBadRequest, "folder_id_input is required")
		return
	}
	res, err := h.svc.Ingest(c.Request.Context(), folderID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"message": msgFolderIndexed,
		"files":   res.Files,
		"chunks":  res.Chunks,
	})
}

func (h *RAGHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: query is required")
		return
	}
	ans, err := h.svc.Answer(c.Request.Context(), *req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"answer": ans.Text})
}

func (h *RAGHandler) Status(c *gin.Context) {
	response.Success(c, h.svc.Status())
}
