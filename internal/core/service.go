package core

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"panelflow/internal/events"
	"panelflow/internal/infra/lock"
	"panelflow/internal/infra/persistence/memory"
)

// Clock supplies the time used to stamp history entries and milestones.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocker sets the per-panel lock used to serialize transitions.
func WithLocker(locker lock.Locker) ServiceOption {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// WithPublisher sets the event publisher notified after committed transitions.
func WithPublisher(publisher events.Publisher) ServiceOption {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// Service exposes the transactional panel operations.
type Service struct {
	store     PersistentStore
	logger    *zap.Logger
	metrics   MetricsRecorder
	clock     Clock
	locker    lock.Locker
	publisher events.Publisher
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
		clock:     systemClock{},
		locker:    lock.NewLocal(),
		publisher: events.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over an in-memory store. A nil engine
// installs the default panel rules.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) run(ctx context.Context, operation string, fn func(Transaction) error) (Result, error) {
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("operation failed", zap.String("operation", operation), zap.Error(err))
		return res, err
	}
	for _, v := range res.Violations {
		s.logger.Info("rule reported", zap.String("operation", operation), zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)), zap.String("message", v.Message))
	}
	s.logger.Debug("operation committed", zap.String("operation", operation))
	return res, nil
}

// CreateProject persists a new project.
func (s *Service) CreateProject(ctx context.Context, project Project) (Project, Result, error) {
	var created Project
	res, err := s.run(ctx, "create_project", func(tx Transaction) error {
		var err error
		created, err = tx.CreateProject(project)
		return err
	})
	return created, res, err
}

// CreateBuilding persists a new building under an existing project.
func (s *Service) CreateBuilding(ctx context.Context, building Building) (Building, Result, error) {
	var created Building
	res, err := s.run(ctx, "create_building", func(tx Transaction) error {
		var err error
		created, err = tx.CreateBuilding(building)
		return err
	})
	return created, res, err
}

// GetPanel returns a panel or ErrNotFound.
func (s *Service) GetPanel(_ context.Context, id string) (Panel, error) {
	panel, ok := s.store.GetPanel(id)
	if !ok {
		return Panel{}, ErrNotFound{Entity: EntityPanel, ID: id}
	}
	return panel, nil
}

// PanelFilter narrows ListPanels. Empty fields match everything.
type PanelFilter struct {
	ProjectID  string
	BuildingID string
	Status     Status
}

func (f PanelFilter) match(p Panel) bool {
	if f.ProjectID != "" && p.ProjectID != f.ProjectID {
		return false
	}
	if f.BuildingID != "" && (p.BuildingID == nil || *p.BuildingID != f.BuildingID) {
		return false
	}
	return f.Status == "" || p.Status == f.Status
}

// ListPanels returns the panels matching filter ordered by serial number.
func (s *Service) ListPanels(_ context.Context, filter PanelFilter) []Panel {
	all := s.store.ListPanels()
	out := all[:0]
	for _, p := range all {
		if filter.match(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out
}

// ListProjects returns every project.
func (s *Service) ListProjects(context.Context) []Project { return s.store.ListProjects() }

// ListBuildings returns the buildings of projectID, or all when empty.
func (s *Service) ListBuildings(_ context.Context, projectID string) []Building {
	all := s.store.ListBuildings()
	if projectID == "" {
		return all
	}
	out := make([]Building, 0, len(all))
	for _, b := range all {
		if b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	return out
}

// ListItems returns the items of projectID, or all when empty.
func (s *Service) ListItems(_ context.Context, projectID string) []Item {
	all := s.store.ListItems()
	if projectID == "" {
		return all
	}
	out := make([]Item, 0, len(all))
	for _, it := range all {
		if it.ProjectID == projectID {
			out = append(out, it)
		}
	}
	return out
}
