package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/amirzhanov/pixpack/internal/model"
)

var ErrBatchNotFound = errors.New("batch not found")

// Repository provides CRUD operations for batches in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateBatch inserts a new batch record.
func (r *Repository) CreateBatch(ctx context.Context, b model.Batch) error {
	query := `
		INSERT INTO batches (id, status, options, sources, created_at)
		VALUES ($1, $2, $3, $4, $5)
   `

	optionsJSON, err := json.Marshal(b.Options)
	if err != nil {
		return fmt.Errorf("create: failed to marshal options: %w", err)
	}
	sourcesJSON, err := json.Marshal(b.Sources)
	if err != nil {
		return fmt.Errorf("create: failed to marshal sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query, b.ID, b.Status, optionsJSON, sourcesJSON, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create: failed to save batch: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch record by ID.
func (r *Repository) GetBatch(ctx context.Context, id uuid.UUID) (model.Batch, error) {
	query := `
		SELECT status, options, sources, report, archive_path, created_at
		FROM batches
		WHERE id = $1
    `

	var b model.Batch
	var optionsBytes, sourcesBytes []byte
	var reportBytes []byte
	var archivePath sql.NullString

	err := r.db.QueryRowContext(
		ctx, query, id,
	).Scan(&b.Status, &optionsBytes, &sourcesBytes, &reportBytes, &archivePath, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Batch{}, ErrBatchNotFound
		}

		return model.Batch{}, fmt.Errorf("get: failed to get batch: %w", err)
	}

	if err := json.Unmarshal(optionsBytes, &b.Options); err != nil {
		return model.Batch{}, fmt.Errorf("get: failed to unmarshal options: %w", err)
	}
	if err := json.Unmarshal(sourcesBytes, &b.Sources); err != nil {
		return model.Batch{}, fmt.Errorf("get: failed to unmarshal sources: %w", err)
	}
	if len(reportBytes) > 0 {
		if err := json.Unmarshal(reportBytes, &b.Report); err != nil {
			return model.Batch{}, fmt.Errorf("get: failed to unmarshal report: %w", err)
		}
	}

	b.ID = id
	b.ArchivePath = archivePath.String

	return b, nil
}

// UpdateStatus moves a batch to a new lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.BatchStatus) error {
	query := `
		UPDATE batches
		SET status = $1
		WHERE id = $2
    `

	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update: failed to update batch status: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrBatchNotFound
	}

	return nil
}

// UpdateResult records the processing outcome: final status, the per-image
// report and the archive location (empty when nothing was archived).
func (r *Repository) UpdateResult(ctx context.Context, id uuid.UUID, status model.BatchStatus, report []model.ReportEntry, archivePath string) error {
	query := `
		UPDATE batches
		SET status = $1, report = $2, archive_path = $3
		WHERE id = $4
    `

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("update: failed to marshal report: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, status, reportJSON, archivePath, id)
	if err != nil {
		return fmt.Errorf("update: failed to update batch result: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrBatchNotFound
	}

	return nil
}

// DeleteBatch deletes a batch record by ID.
func (r *Repository) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM batches WHERE id = $1
    `

	rows, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: failed to delete batch: %w", err)
	}

	n, err := rows.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete: failed to get number of rows affected: %w", err)
	}

	if n == 0 {
		return ErrBatchNotFound
	}

	return nil
}
