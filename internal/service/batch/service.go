package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/amirzhanov/pixpack/internal/actionlog"
	"github.com/amirzhanov/pixpack/internal/model"
	"github.com/amirzhanov/pixpack/internal/pipeline"
	"github.com/amirzhanov/pixpack/internal/storage/file"
)

// repository defines the persistence operations the service needs.
type repository interface {
	CreateBatch(ctx context.Context, b model.Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (model.Batch, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.BatchStatus) error
	UpdateResult(ctx context.Context, id uuid.UUID, status model.BatchStatus, report []model.ReportEntry, archivePath string) error
	DeleteBatch(ctx context.Context, id uuid.UUID) error
}

// fileStorage defines the object storage operations the service needs.
type fileStorage interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// producer defines the interface for enqueueing jobs into a message broker.
type producer interface {
	Produce(ctx context.Context, job model.Job) error
}

// Upload is one file received from the client.
type Upload struct {
	Filename string
	Data     []byte
}

// Service provides business logic for batch operations: it accepts uploads,
// enqueues processing jobs, runs the pipeline when a job arrives and serves
// the results.
type Service struct {
	repo     repository
	storage  fileStorage
	producer producer
	pipeline *pipeline.Pipeline
	actions  *actionlog.Log
}

// NewService creates a new Service.
func NewService(r repository, fs fileStorage, p producer, pl *pipeline.Pipeline, al *actionlog.Log) *Service {
	return &Service{repo: r, storage: fs, producer: p, pipeline: pl, actions: al}
}

// CreateBatch stores the uploaded originals, persists the batch as pending
// and enqueues a processing job. Returns the new batch ID.
func (s *Service) CreateBatch(ctx context.Context, uploads []Upload, opts model.Options) (uuid.UUID, error) {
	if len(uploads) == 0 {
		return uuid.Nil, fmt.Errorf("create batch: no files")
	}

	id := uuid.New()
	sources := make([]model.SourceRef, 0, len(uploads))
	for _, u := range uploads {
		format, err := model.DetectFormat(u.Filename, u.Data)
		if err != nil {
			return uuid.Nil, fmt.Errorf("create batch: %s: %w", u.Filename, err)
		}

		key := file.OriginalKey(id, u.Filename)
		if err := s.storage.Save(ctx, key, u.Data, "application/octet-stream"); err != nil {
			return uuid.Nil, fmt.Errorf("create batch: store %s: %w", u.Filename, err)
		}
		sources = append(sources, model.SourceRef{Filename: u.Filename, Format: format, Key: key})
	}

	b := model.Batch{
		ID:        id,
		Status:    model.StatusPending,
		Options:   opts,
		Sources:   sources,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return uuid.Nil, fmt.Errorf("create batch: %w", err)
	}

	if err := s.producer.Produce(ctx, model.Job{BatchID: id}); err != nil {
		return uuid.Nil, fmt.Errorf("create batch: enqueue: %w", err)
	}

	s.actions.Append("batch %s created with %d file(s)", id, len(uploads))

	return id, nil
}

// ProcessBatch loads the batch sources from storage, runs the pipeline and
// persists the report and archive. One image failing does not fail the
// batch; a packaging failure does.
func (s *Service) ProcessBatch(ctx context.Context, id uuid.UUID) error {
	b, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, id, model.StatusProcessing); err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	sources := make([]pipeline.Source, 0, len(b.Sources))
	for _, ref := range b.Sources {
		data, err := s.storage.Load(ctx, ref.Key)
		if err != nil {
			return fmt.Errorf("process batch: load %s: %w", ref.Filename, err)
		}
		sources = append(sources, pipeline.Source{Name: ref.Filename, Format: ref.Format, Data: data})
	}

	res, runErr := s.pipeline.Run(ctx, sources, b.Options)
	if runErr != nil {
		if err := s.repo.UpdateResult(ctx, id, model.StatusFailed, res.Report, ""); err != nil {
			zlog.Logger.Err(err).Str("batch", id.String()).Msg("failed to record batch failure")
		}
		s.actions.Append("batch %s failed: %v", id, runErr)
		return fmt.Errorf("process batch: %w", runErr)
	}

	archivePath := ""
	if res.Archive != nil {
		archivePath = file.ArchiveKey(id)
		if err := s.storage.Save(ctx, archivePath, res.Archive, "application/zip"); err != nil {
			if uerr := s.repo.UpdateResult(ctx, id, model.StatusFailed, res.Report, ""); uerr != nil {
				zlog.Logger.Err(uerr).Str("batch", id.String()).Msg("failed to record batch failure")
			}
			return fmt.Errorf("process batch: store archive: %w", err)
		}
	}

	if err := s.repo.UpdateResult(ctx, id, model.StatusDone, res.Report, archivePath); err != nil {
		return fmt.Errorf("process batch: %w", err)
	}

	succeeded := 0
	for _, e := range res.Report {
		if e.Outcome == model.OutcomeSuccess {
			succeeded++
		}
	}
	s.actions.Append("batch %s processed: %d/%d succeeded", id, succeeded, len(res.Report))

	return nil
}

// Peek inspects uploads without storing or modifying anything.
func (s *Service) Peek(ctx context.Context, uploads []Upload) ([]pipeline.PeekResult, error) {
	sources := make([]pipeline.Source, 0, len(uploads))
	unsupported := make([]bool, len(uploads))
	for i, u := range uploads {
		format, err := model.DetectFormat(u.Filename, u.Data)
		if err != nil {
			unsupported[i] = true
			sources = append(sources, pipeline.Source{Name: u.Filename})
			continue
		}
		sources = append(sources, pipeline.Source{Name: u.Filename, Format: format, Data: u.Data})
	}

	results := s.pipeline.Peek(ctx, sources)
	for i := range results {
		if unsupported[i] {
			results[i].Err = "unsupported image format"
		}
	}

	s.actions.Append("peeked at %d file(s)", len(uploads))

	return results, nil
}

// GetBatch returns the batch with its report.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (model.Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// GetArchive loads the finished archive for a batch.
func (s *Service) GetArchive(ctx context.Context, id uuid.UUID) ([]byte, error) {
	b, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ArchivePath == "" {
		return nil, fmt.Errorf("get archive: batch %s has no archive", id)
	}
	return s.storage.Load(ctx, b.ArchivePath)
}

// DeleteBatch removes the batch record, its originals and its archive.
func (s *Service) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	b, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return err
	}

	if err := s.storage.DeletePrefix(ctx, "originals/"+id.String()); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	if b.ArchivePath != "" {
		if err := s.storage.Delete(ctx, b.ArchivePath); err != nil {
			return fmt.Errorf("delete batch: %w", err)
		}
	}

	if err := s.repo.DeleteBatch(ctx, id); err != nil {
		return err
	}

	s.actions.Append("batch %s deleted", id)

	return nil
}

// Actions returns the recent activity history.
func (s *Service) Actions() []actionlog.Entry {
	return s.actions.Entries()
}
