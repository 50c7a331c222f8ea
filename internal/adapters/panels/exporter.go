package panels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"panelflow/internal/blob"
	"panelflow/internal/core"
	"panelflow/internal/logging"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportArtifact is a rendered workbook kept in the blob store.
type ExportArtifact struct {
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Rows        int    `json:"rows"`
}

// ExportRecord tracks one export request.
type ExportRecord struct {
	ID          string          `json:"id"`
	Status      ExportStatus    `json:"status"`
	ProjectID   string          `json:"project_id,omitempty"`
	BuildingID  string          `json:"building_id,omitempty"`
	PanelStatus core.Status     `json:"panel_status,omitempty"`
	RequestedBy string          `json:"requested_by,omitempty"`
	Error       string          `json:"error,omitempty"`
	Artifact    *ExportArtifact `json:"artifact,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	cp := r
	if r.Artifact != nil {
		a := *r.Artifact
		cp.Artifact = &a
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// ExportInput is an enqueue request.
type ExportInput struct {
	Filter      core.PanelFilter
	RequestedBy string
}

// ExportScheduler queues workbook exports and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// ErrQueueFull is returned when the worker cannot accept another export.
var ErrQueueFull = errors.New("export queue full")

// Worker renders panel workbooks in the background and stores them under
// exports/{id}.xlsx.
type Worker struct {
	catalog Catalog
	store   blob.Store
	logger  *zap.Logger
	now     func() time.Time

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker. Call Start before enqueueing.
func NewWorker(catalog Catalog, store blob.Store, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		catalog: catalog,
		store:   store,
		logger:  logging.OrNop(logger),
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan exportTask, 32),
		jobs:    make(map[string]*ExportRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current export.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export and returns the queued record.
func (w *Worker) EnqueueExport(_ context.Context, input ExportInput) (ExportRecord, error) {
	if input.Filter.Status != "" && !input.Filter.Status.Valid() {
		return ExportRecord{}, fmt.Errorf("unknown status %q", input.Filter.Status)
	}
	now := w.now()
	record := ExportRecord{
		ID:          uuid.NewString(),
		Status:      ExportStatusQueued,
		ProjectID:   input.Filter.ProjectID,
		BuildingID:  input.Filter.BuildingID,
		PanelStatus: input.Filter.Status,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	select {
	case w.queue <- exportTask{id: record.ID, input: input}:
	default:
		w.mu.Unlock()
		return ExportRecord{}, ErrQueueFull
	}
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.logger.Info("export queued", zap.String("export_id", record.ID), zap.String("requested_by", input.RequestedBy))
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	w.update(task.id, func(r *ExportRecord) { r.Status = ExportStatusRunning })

	data, rows, err := PanelWorkbook(w.ctx, w.catalog, task.input.Filter)
	if err != nil {
		w.fail(task.id, fmt.Sprintf("render workbook: %v", err))
		return
	}
	key := fmt.Sprintf("exports/%s.xlsx", task.id)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: xlsxContentType,
		Metadata:    map[string]string{"export": task.id, "requested_by": task.input.RequestedBy},
	})
	if err != nil {
		w.fail(task.id, fmt.Sprintf("store workbook: %v", err))
		return
	}

	artifact := &ExportArtifact{Key: info.Key, ContentType: xlsxContentType, SizeBytes: info.Size, Rows: rows}
	w.update(task.id, func(r *ExportRecord) {
		r.Status = ExportStatusSucceeded
		r.Error = ""
		r.Artifact = artifact
		done := r.UpdatedAt
		r.CompletedAt = &done
	})
	w.logger.Info("export stored", zap.String("export_id", task.id), zap.String("key", info.Key), zap.Int("rows", rows))
}

func (w *Worker) fail(id, reason string) {
	w.update(id, func(r *ExportRecord) {
		r.Status = ExportStatusFailed
		r.Error = reason
		done := r.UpdatedAt
		r.CompletedAt = &done
	})
	w.logger.Warn("export failed", zap.String("export_id", id), zap.String("error", reason))
}

func (w *Worker) update(id string, fn func(*ExportRecord)) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.UpdatedAt = now
		fn(record)
	}
}
