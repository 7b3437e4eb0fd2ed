package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/amirzhanov/pixpack/internal/actionlog"
	"github.com/amirzhanov/pixpack/internal/api/respond"
	"github.com/amirzhanov/pixpack/internal/model"
	"github.com/amirzhanov/pixpack/internal/pipeline"
	"github.com/amirzhanov/pixpack/internal/repository/batch"
	svc "github.com/amirzhanov/pixpack/internal/service/batch"
)

const maxUploadMemory = 32 << 20

// service defines the interface for batch-related operations.
type service interface {
	CreateBatch(ctx context.Context, uploads []svc.Upload, opts model.Options) (uuid.UUID, error)
	Peek(ctx context.Context, uploads []svc.Upload) ([]pipeline.PeekResult, error)
	GetBatch(ctx context.Context, id uuid.UUID) (model.Batch, error)
	GetArchive(ctx context.Context, id uuid.UUID) ([]byte, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) error
	Actions() []actionlog.Entry
}

// Handler provides HTTP handlers for batch-related endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Create handles the HTTP request for creating a batch. It reads the
// uploaded images and the "options" JSON field from the multipart form,
// stores the batch via the service and responds with the batch ID.
func (h *Handler) Create(c *ginext.Context) {
	uploads, ok := readUploads(c)
	if !ok {
		return
	}

	var opts model.Options
	if optionsJSON := c.PostForm("options"); optionsJSON != "" {
		if err := json.Unmarshal([]byte(optionsJSON), &opts); err != nil {
			zlog.Logger.Err(err).Msg("failed to unmarshal the options")
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to unmarshal the options"))
			return
		}
	}

	id, err := h.service.CreateBatch(c.Request.Context(), uploads, opts)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to create the batch")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to create the batch: %v", err))
		return
	}

	zlog.Logger.Printf("batch created: %v (%d files)", id, len(uploads))

	respond.Created(c, map[string]interface{}{
		"id":    id,
		"files": len(uploads),
	})
}

// Peek inspects the uploaded images without creating a batch: dimensions,
// camera, capture date and GPS presence per file.
func (h *Handler) Peek(c *ginext.Context) {
	uploads, ok := readUploads(c)
	if !ok {
		return
	}

	results, err := h.service.Peek(c.Request.Context(), uploads)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to peek")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to peek: %v", err))
		return
	}

	respond.OK(c, results)
}

// Get returns the batch with its status and per-image report.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := h.service.GetBatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			zlog.Logger.Warn().Msg("batch not found")
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("batch not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get batch")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get batch: %v", err))
		return
	}

	respond.OK(c, b)
}

// Archive serves the finished ZIP for a batch.
func (h *Handler) Archive(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	data, err := h.service.GetArchive(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			zlog.Logger.Warn().Msg("batch not found")
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("batch not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get archive")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get archive: %v", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id.String()+".zip"))
	respond.ZIP(c, http.StatusOK, data)
}

// Delete removes a batch by ID together with its stored files.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteBatch(c.Request.Context(), id); err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			zlog.Logger.Warn().Msg("batch not found")
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("batch not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to delete the batch")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to delete batch: %v", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// Actions returns the recent activity history.
func (h *Handler) Actions(c *ginext.Context) {
	respond.OK(c, h.service.Actions())
}

// readUploads parses the multipart form and reads every file from the
// "images" field, preserving the order the client sent them in.
func readUploads(c *ginext.Context) ([]svc.Upload, bool) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("parse multipart form failed: %v", err))
		return nil, false
	}

	var headers []*multipart.FileHeader
	if c.Request.MultipartForm != nil {
		headers = c.Request.MultipartForm.File["images"]
	}
	if len(headers) == 0 {
		zlog.Logger.Warn().Msg("no images provided")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("images field is required"))
		return nil, false
	}

	uploads := make([]svc.Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to open uploaded file")
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read file %s", header.Filename))
			return nil, false
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to read uploaded file")
			respond.Fail(c, http.StatusBadRequest, fmt.Errorf("failed to read file %s", header.Filename))
			return nil, false
		}
		uploads = append(uploads, svc.Upload{Filename: header.Filename, Data: data})
	}

	return uploads, true
}

// parseID extracts and validates the batch ID path parameter.
func parseID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	if idStr == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing id"))
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to parse id")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return uuid.Nil, false
	}

	return id, true
}
