package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragdrive/internal/middleware"
)

type RouterDeps struct {
	RAG             *RAGHandler
	IngestRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/", Index)
	api.GET("/status", deps.RAG.Status)
	api.POST("/query", deps.RAG.Query)
	ingestLimit := middleware.RateLimit(deps.IngestRateLimit)
	api.POST("/set_folder/", ingestLimit, deps.RAG.SetFolder)
	api.POST("/set_folder", ingestLimit, deps.RAG.SetFolder)
}
