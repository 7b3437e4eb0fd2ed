package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/amirzhanov/pixpack/internal/model"
	"github.com/amirzhanov/pixpack/internal/repository/batch"
)

// service defines the interface for processing created batches.
type service interface {
	ProcessBatch(ctx context.Context, id uuid.UUID) error
}

// CreatedHandler handles Kafka messages for newly created batches.
// It relies on a service that implements the batch processing logic.
type CreatedHandler struct {
	service service
}

// NewCreatedHandler creates a new handler with the given service.
func NewCreatedHandler(s service) *CreatedHandler {
	return &CreatedHandler{service: s}
}

// Handle processes a Kafka message containing a batch job.
// It unmarshals the message, calls the service to process the batch,
// and logs the result.
func (h *CreatedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var job model.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	if err := h.service.ProcessBatch(ctx, job.BatchID); err != nil {
		if errors.Is(err, batch.ErrBatchNotFound) {
			return fmt.Errorf("process job: %w", batch.ErrBatchNotFound)
		}

		return fmt.Errorf("process job: %w", err)
	}

	zlog.Logger.Printf("batch processed: %s", job.BatchID)

	return nil
}
