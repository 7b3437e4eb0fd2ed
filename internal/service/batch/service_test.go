package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/amirzhanov/pixpack/internal/actionlog"
	"github.com/amirzhanov/pixpack/internal/model"
	"github.com/amirzhanov/pixpack/internal/pipeline"
	batchrepo "github.com/amirzhanov/pixpack/internal/repository/batch"
)

type fakeRepo struct {
	batches map[uuid.UUID]model.Batch
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{batches: make(map[uuid.UUID]model.Batch)}
}

func (r *fakeRepo) CreateBatch(_ context.Context, b model.Batch) error {
	r.batches[b.ID] = b
	return nil
}

func (r *fakeRepo) GetBatch(_ context.Context, id uuid.UUID) (model.Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return model.Batch{}, batchrepo.ErrBatchNotFound
	}
	return b, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.BatchStatus) error {
	b, ok := r.batches[id]
	if !ok {
		return batchrepo.ErrBatchNotFound
	}
	b.Status = status
	r.batches[id] = b
	return nil
}

func (r *fakeRepo) UpdateResult(_ context.Context, id uuid.UUID, status model.BatchStatus, report []model.ReportEntry, archivePath string) error {
	b, ok := r.batches[id]
	if !ok {
		return batchrepo.ErrBatchNotFound
	}
	b.Status = status
	b.Report = report
	b.ArchivePath = archivePath
	r.batches[id] = b
	return nil
}

func (r *fakeRepo) DeleteBatch(_ context.Context, id uuid.UUID) error {
	if _, ok := r.batches[id]; !ok {
		return batchrepo.ErrBatchNotFound
	}
	delete(r.batches, id)
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Save(_ context.Context, key string, data []byte, _ string) error {
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Load(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

type fakeProducer struct {
	jobs []model.Job
}

func (p *fakeProducer) Produce(_ context.Context, job model.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func newTestService() (*Service, *fakeRepo, *fakeStorage, *fakeProducer) {
	repo := newFakeRepo()
	storage := newFakeStorage()
	producer := &fakeProducer{}
	pl := pipeline.New(pipeline.Config{Workers: 1})
	svc := NewService(repo, storage, producer, pl, actionlog.New(10))
	return svc, repo, storage, producer
}

func TestCreateAndProcessBatch(t *testing.T) {
	svc, repo, storage, producer := newTestService()
	ctx := context.Background()

	uploads := []Upload{
		{Filename: "one.jpg", Data: smallJPEG(t)},
		{Filename: "two.jpg", Data: smallJPEG(t)},
	}

	id, err := svc.CreateBatch(ctx, uploads, model.Options{RenamePattern: "pic_{index}"})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	if len(producer.jobs) != 1 || producer.jobs[0].BatchID != id {
		t.Fatalf("expected one enqueued job for %s, got %+v", id, producer.jobs)
	}

	b := repo.batches[id]
	if b.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", b.Status)
	}
	if len(b.Sources) != 2 {
		t.Fatalf("batch has %d sources, want 2", len(b.Sources))
	}
	if _, ok := storage.objects[b.Sources[0].Key]; !ok {
		t.Error("original not stored")
	}

	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b = repo.batches[id]
	if b.Status != model.StatusDone {
		t.Errorf("status = %s, want done", b.Status)
	}
	if len(b.Report) != 2 {
		t.Fatalf("report has %d entries, want 2", len(b.Report))
	}
	if b.ArchivePath == "" {
		t.Fatal("archive path not recorded")
	}

	data, err := svc.GetArchive(ctx, id)
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty archive")
	}
}

func TestCreateBatchRejectsEmptyAndUnknown(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateBatch(ctx, nil, model.Options{}); err == nil {
		t.Error("empty batch accepted")
	}

	uploads := []Upload{{Filename: "notes.txt", Data: []byte("hello")}}
	if _, err := svc.CreateBatch(ctx, uploads, model.Options{}); err == nil {
		t.Error("non-image upload accepted")
	}
}

func TestProcessBatchNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	if err := svc.ProcessBatch(context.Background(), uuid.New()); err == nil {
		t.Error("missing batch processed without error")
	}
}

func TestDeleteBatchRemovesObjects(t *testing.T) {
	svc, repo, storage, _ := newTestService()
	ctx := context.Background()

	id, err := svc.CreateBatch(ctx, []Upload{{Filename: "one.jpg", Data: smallJPEG(t)}}, model.Options{})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := svc.ProcessBatch(ctx, id); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if err := svc.DeleteBatch(ctx, id); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}

	if _, ok := repo.batches[id]; ok {
		t.Error("batch record survived deletion")
	}
	if len(storage.objects) != 0 {
		t.Errorf("objects survived deletion: %v", keys(storage.objects))
	}
}

func TestPeekDoesNotStore(t *testing.T) {
	svc, repo, storage, producer := newTestService()

	results, err := svc.Peek(context.Background(), []Upload{
		{Filename: "one.jpg", Data: smallJPEG(t)},
		{Filename: "bad.txt", Data: []byte("hello")},
	})
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err != "" {
		t.Errorf("one.jpg err = %q", results[0].Err)
	}
	if results[0].Width != 16 || results[0].Height != 16 {
		t.Errorf("one.jpg dims = %dx%d, want 16x16", results[0].Width, results[0].Height)
	}
	if results[1].Err != "unsupported image format" {
		t.Errorf("bad.txt err = %q, want %q", results[1].Err, "unsupported image format")
	}

	if len(repo.batches) != 0 || len(storage.objects) != 0 || len(producer.jobs) != 0 {
		t.Error("peek left state behind")
	}
}

func TestActions(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.CreateBatch(context.Background(), []Upload{{Filename: "one.jpg", Data: smallJPEG(t)}}, model.Options{}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	entries := svc.Actions()
	if len(entries) != 1 {
		t.Fatalf("got %d actions, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Message, "created") {
		t.Errorf("action = %q", entries[0].Message)
	}
	if time.Since(entries[0].At) > time.Minute {
		t.Errorf("stale timestamp: %v", entries[0].At)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
