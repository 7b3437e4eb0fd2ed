package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/amirzhanov/pixpack/internal/api/handlers/batch"
	"github.com/amirzhanov/pixpack/internal/middleware"
)

func Setup(h *batch.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/batches", h.Create)              // uploading a batch of images
	api.POST("/peek", h.Peek)                   // inspecting images without processing
	api.GET("/batches/:id", h.Get)              // batch status and report
	api.GET("/batches/:id/archive", h.Archive)  // downloading the finished zip
	api.DELETE("/batches/:id", h.Delete)        // deleting batch and files
	api.GET("/actions", h.Actions)              // recent activity

	return r
}
