// Package reconcile merges externally supplied tabular rows into the panel
// and item record sets. Each row is normalized, resolved to an identity by
// its natural key, merged into the matched record or created, and the whole
// write set is persisted in one store call. Row failures are isolated and
// reported; they never abort the batch.
package reconcile

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"panelflow/internal/events"
	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

// Kind names the record family a batch reconciles.
type Kind string

const (
	KindPanels Kind = "panels"
	KindItems  Kind = "items"
)

// Outcome classifies one row.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeUpdated Outcome = "updated"
	OutcomeFailed  Outcome = "failed"
)

const defaultActor = "import"

// Store is the slice of the record store the reconciler needs: one snapshot
// read at batch start and one batch write at the end.
type Store interface {
	View(ctx context.Context, fn func(domain.TransactionView) error) error
	UpsertPanels(ctx context.Context, panels []domain.Panel) (domain.Result, error)
	UpsertItems(ctx context.Context, items []domain.Item) (domain.Result, error)
}

// Archiver keeps a copy of the raw upload and returns its key.
type Archiver interface {
	Archive(ctx context.Context, kind, batchID, filename string, data []byte) (string, error)
}

// Metrics counts row and batch outcomes.
type Metrics interface {
	ImportRow(kind, outcome string)
	ImportBatch(kind, result string)
}

type noopMetrics struct{}

func (noopMetrics) ImportRow(string, string)   {}
func (noopMetrics) ImportBatch(string, string) {}

// Options configure a Reconciler. Zero values select defaults.
type Options struct {
	// Workers bounds concurrent row preparation. Defaults to runtime.NumCPU().
	Workers   int
	Logger    *zap.Logger
	Metrics   Metrics
	Publisher events.Publisher
	// Archive, when set, receives the raw payload before it is parsed.
	Archive Archiver
	Now     func() time.Time
	// Actor attributes the opening history entry of created panels.
	Actor      string
	NewBatchID func() string
}

// Reconciler runs import batches against a store. It keeps no per-batch
// state and is safe for concurrent use.
type Reconciler struct {
	store Store
	opts  Options
}

// New returns a Reconciler writing to store.
func New(store Store, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Actor == "" {
		opts.Actor = defaultActor
	}
	if opts.NewBatchID == nil {
		opts.NewBatchID = uuid.NewString
	}
	return &Reconciler{store: store, opts: opts}
}

// Request is one uploaded payload. Format is detected from Filename and
// ContentType when empty. ProjectID and BuildingID are the batch defaults
// for created records and accept an id, a project code or a building name.
type Request struct {
	Format      tabular.Format
	Filename    string
	ContentType string
	Payload     []byte
	ProjectID   string
	BuildingID  string
}

// RowResult is the outcome of one row.
type RowResult struct {
	Row      int     `json:"row"`
	Key      string  `json:"key,omitempty"`
	RecordID string  `json:"record_id,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Report is the outcome of a batch. Counts describe classification and are
// kept when the write fails; Persisted tells whether they reached the store.
type Report struct {
	BatchID      string      `json:"batch_id"`
	Kind         Kind        `json:"kind"`
	State        BatchState  `json:"state"`
	Added        int         `json:"added"`
	Updated      int         `json:"updated"`
	Failed       int         `json:"failed"`
	Total        int         `json:"total"`
	Errors       []string    `json:"errors"`
	Warnings     []string    `json:"warnings,omitempty"`
	Rows         []RowResult `json:"rows,omitempty"`
	Persisted    bool        `json:"persisted"`
	PersistError string      `json:"persist_error,omitempty"`
	ArchiveKey   string      `json:"archive_key,omitempty"`
}

type batch struct {
	kind    Kind
	machine *batchMachine
	report  Report
	started time.Time
}

func (r *Reconciler) begin(kind Kind) *batch {
	id := r.opts.NewBatchID()
	return &batch{
		kind:    kind,
		machine: newBatchMachine(id, r.opts.Logger),
		report:  Report{BatchID: id, Kind: kind, State: StateIdle, Errors: []string{}},
		started: time.Now(),
	}
}

// ImportPanels reconciles an uploaded panel payload.
func (r *Reconciler) ImportPanels(ctx context.Context, req Request) (Report, error) {
	b := r.begin(KindPanels)
	records, err := r.parse(ctx, b, req)
	if err != nil {
		return b.report, err
	}
	return r.reconcilePanels(ctx, b, records, Defaults{ProjectID: req.ProjectID, BuildingID: req.BuildingID})
}

// ReconcilePanels reconciles rows that were decoded by the caller.
func (r *Reconciler) ReconcilePanels(ctx context.Context, rows []tabular.Row, defaults Defaults) (Report, error) {
	b := r.begin(KindPanels)
	if err := b.machine.fire(eventParse); err != nil {
		return b.report, err
	}
	return r.reconcilePanels(ctx, b, tabular.Number(rows), defaults)
}

// parse archives the payload when an archiver is configured and decodes it.
// An undecodable payload fails the batch with zero rows processed.
func (r *Reconciler) parse(ctx context.Context, b *batch, req Request) ([]tabular.Record, error) {
	if err := b.machine.fire(eventParse); err != nil {
		return nil, err
	}
	if r.opts.Archive != nil {
		key, err := r.opts.Archive.Archive(ctx, string(b.kind), b.report.BatchID, req.Filename, req.Payload)
		if err != nil {
			r.opts.Logger.Warn("archive upload",
				zap.String("batch_id", b.report.BatchID), zap.Error(err))
		} else {
			b.report.ArchiveKey = key
		}
	}

	format := req.Format
	if format == "" {
		detected, err := tabular.DetectFormat(req.Filename, req.ContentType)
		if err != nil {
			return nil, r.failParse(ctx, b, err)
		}
		format = detected
	}
	records, err := tabular.ParseRecords(format, req.Payload)
	if err != nil {
		return nil, r.failParse(ctx, b, err)
	}
	return records, nil
}

func (r *Reconciler) failParse(ctx context.Context, b *batch, cause error) error {
	err := ParseError{Err: cause}
	b.report.Errors = append(b.report.Errors, err.Error())
	if fireErr := b.machine.fire(eventFail); fireErr != nil {
		return errors.Join(err, fireErr)
	}
	r.finish(ctx, b)
	return err
}

// prepared is the per-row result of the concurrent phase.
type prepared[T any] struct {
	index    int
	key      string
	kind     ResolutionKind
	record   T
	err      error
	warnings []string
}

// prepareAll runs fn for every record on a bounded pool. Results are stored
// by position so completion order never leaks into the outcome.
func prepareAll[T any](ctx context.Context, workers int, records []tabular.Record, fn func(index int, raw tabular.Row) prepared[T]) []prepared[T] {
	out := make([]prepared[T], len(records))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			out[i] = fn(rec.Number, rec.Row)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// classify folds prepared rows into the report in row order and returns the
// records to write. Later rows repeating a key already claimed in this batch
// fail.
func classify[T any](b *batch, plans []prepared[T], keyField string, recordID func(T) string) []T {
	report := &b.report
	report.Total = len(plans)
	writes := make([]T, 0, len(plans))
	seen := make(map[string]int, len(plans))
	for _, plan := range plans {
		report.Warnings = append(report.Warnings, plan.warnings...)
		if plan.err == nil {
			if first, dup := seen[plan.key]; dup {
				plan.err = ValidationError{Row: plan.index, Field: keyField, Reason: "duplicate of row " + strconv.Itoa(first)}
			} else {
				seen[plan.key] = plan.index
			}
		}
		result := RowResult{Row: plan.index, Key: plan.key}
		switch {
		case plan.err != nil:
			result.Outcome = OutcomeFailed
			result.Error = plan.err.Error()
			report.Failed++
			report.Errors = append(report.Errors, plan.err.Error())
		case plan.kind == ResolutionMatch:
			result.Outcome = OutcomeUpdated
			result.RecordID = recordID(plan.record)
			report.Updated++
			writes = append(writes, plan.record)
		default:
			result.Outcome = OutcomeAdded
			report.Added++
			writes = append(writes, plan.record)
		}
		report.Rows = append(report.Rows, result)
	}
	return writes
}

// persist issues the single batch write. The write runs to completion even
// when the caller gives up waiting.
func (r *Reconciler) persist(ctx context.Context, b *batch, write func(context.Context) error) error {
	if err := b.machine.fire(eventPersist); err != nil {
		return err
	}
	if err := write(context.WithoutCancel(ctx)); err != nil {
		b.report.PersistError = err.Error()
		pErr := PersistenceError{BatchID: b.report.BatchID, Err: err}
		if fireErr := b.machine.fire(eventFail); fireErr != nil {
			return errors.Join(pErr, fireErr)
		}
		r.finish(ctx, b)
		return pErr
	}
	b.report.Persisted = true
	if err := b.machine.fire(eventReport); err != nil {
		return err
	}
	r.finish(ctx, b)
	return nil
}

// finish records the final state and emits logs, metrics and the feed event.
func (r *Reconciler) finish(ctx context.Context, b *batch) {
	report := &b.report
	report.State = b.machine.state()
	kind := string(b.kind)
	for _, row := range report.Rows {
		r.opts.Metrics.ImportRow(kind, string(row.Outcome))
	}
	r.opts.Metrics.ImportBatch(kind, string(report.State))

	fields := []zap.Field{
		zap.String("batch_id", report.BatchID),
		zap.String("kind", kind),
		zap.String("state", string(report.State)),
		zap.Int("added", report.Added),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Int("total", report.Total),
		zap.Duration("elapsed", time.Since(b.started)),
	}
	if report.State == StateFailed {
		r.opts.Logger.Warn("import failed", append(fields, zap.Strings("errors", report.Errors))...)
	} else {
		r.opts.Logger.Info("import reconciled", fields...)
	}

	event := events.Event{
		Kind:  events.KindImportReported,
		Topic: events.ImportTopic(report.BatchID),
		At:    r.opts.Now().UTC(),
		Payload: events.ImportSummary{
			BatchID:   report.BatchID,
			Kind:      kind,
			State:     string(report.State),
			Added:     report.Added,
			Updated:   report.Updated,
			Failed:    report.Failed,
			Total:     report.Total,
			Persisted: report.Persisted,
		},
	}
	if err := r.opts.Publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		r.opts.Logger.Warn("publish import event", zap.String("batch_id", report.BatchID), zap.Error(err))
	}
}
