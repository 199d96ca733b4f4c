package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"resume-pipeline-go/internal/api/handler"
)

// Register 挂载流水线路由
func Register(h *server.Hertz, pipeline *handler.PipelineHandler) {
	v1 := h.Group("/api/v1")

	resumes := v1.Group("/resumes")
	resumes.POST("/upload", pipeline.UploadResume)

	p := v1.Group("/pipeline")
	p.GET("/status/:jobId", pipeline.GetStatus)
	p.POST("/retry/:jobId", pipeline.RetryJob)
	p.GET("/statistics", pipeline.GetStatistics)
	p.GET("/health", pipeline.GetHealth)
}
