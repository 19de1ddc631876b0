// Package core hosts the comptrack service: CRUD over the completion
// hierarchy, KPI aggregation, and the read paths consumed by the adapters.
package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"comptrack/pkg/domain"
)

// ErrValidation marks input rejected before reaching the store.
var ErrValidation = errors.New("validation failed")

func validationf(msg string) error {
	return errors.Join(ErrValidation, errors.New(msg))
}

// Service exposes the application operations over a persistent store.
type Service struct {
	store   domain.PersistentStore
	log     *zap.Logger
	metrics MetricsRecorder
	kpis    *Aggregator
}

// NewService constructs a Service. A nil logger or recorder falls back to
// no-op implementations.
func NewService(store domain.PersistentStore, log *zap.Logger, metrics MetricsRecorder) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Service{
		store:   store,
		log:     log,
		metrics: metrics,
		kpis:    NewAggregator(store, log.Named("kpi")),
	}
}

// Store exposes the underlying persistent store for adapters that run their
// own transactions (bulk import).
func (s *Service) Store() domain.PersistentStore { return s.store }

// KPIs exposes the aggregator, mainly so tests can pin its clock.
func (s *Service) KPIs() *Aggregator { return s.kpis }

// CreateProject validates and persists a new project.
func (s *Service) CreateProject(ctx context.Context, p Project) (Project, error) {
	if strings.TrimSpace(p.Code) == "" {
		return Project{}, validationf("project code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return Project{}, validationf("project name is required")
	}
	var created Project
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateProject(p)
		return err
	})
	if err != nil {
		return Project{}, err
	}
	s.log.Info("project created", zap.String("id", created.ID), zap.String("code", created.Code))
	return created, nil
}

// UpdateProject applies the mutator to an existing project.
func (s *Service) UpdateProject(ctx context.Context, id string, mutator func(*Project) error) (Project, error) {
	var updated Project
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateProject(id, mutator)
		return err
	})
	return updated, err
}

// CreateSystem validates and persists a new system.
func (s *Service) CreateSystem(ctx context.Context, sys System) (System, error) {
	if strings.TrimSpace(sys.Code) == "" {
		return System{}, validationf("system code is required")
	}
	if sys.ProjectID == "" {
		return System{}, validationf("system project_id is required")
	}
	var created System
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateSystem(sys)
		return err
	})
	return created, err
}

// CreateSubsystem validates and persists a new subsystem.
func (s *Service) CreateSubsystem(ctx context.Context, sub Subsystem) (Subsystem, error) {
	if strings.TrimSpace(sub.Code) == "" {
		return Subsystem{}, validationf("subsystem code is required")
	}
	if sub.SystemID == "" {
		return Subsystem{}, validationf("subsystem system_id is required")
	}
	var created Subsystem
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateSubsystem(sub)
		return err
	})
	return created, err
}

// CreateTag validates and persists a new tag.
func (s *Service) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	if strings.TrimSpace(tag.TagCode) == "" {
		return Tag{}, validationf("tag code is required")
	}
	if tag.SubsystemID == "" {
		return Tag{}, validationf("tag subsystem_id is required")
	}
	var created Tag
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateTag(tag)
		return err
	})
	return created, err
}

// CreateInspectionRecord validates and persists a new ITR.
func (s *Service) CreateInspectionRecord(ctx context.Context, itr InspectionRecord) (InspectionRecord, error) {
	if strings.TrimSpace(itr.ITRCode) == "" {
		return InspectionRecord{}, validationf("itr code is required")
	}
	if itr.ITRType != domain.ITRTypeA && itr.ITRType != domain.ITRTypeB {
		return InspectionRecord{}, validationf("itr type must be A or B")
	}
	if itr.SubsystemID == "" {
		return InspectionRecord{}, validationf("itr subsystem_id is required")
	}
	var created InspectionRecord
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateInspectionRecord(itr)
		return err
	})
	return created, err
}

// UpdateInspectionRecord applies the mutator to an existing ITR.
func (s *Service) UpdateInspectionRecord(ctx context.Context, id string, mutator func(*InspectionRecord) error) (InspectionRecord, error) {
	var updated InspectionRecord
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateInspectionRecord(id, mutator)
		return err
	})
	return updated, err
}

// CreatePunchItem validates and persists a new punch item.
func (s *Service) CreatePunchItem(ctx context.Context, p PunchItem) (PunchItem, error) {
	if strings.TrimSpace(p.Description) == "" {
		return PunchItem{}, validationf("punch description is required")
	}
	switch p.Category {
	case domain.PunchCategoryA, domain.PunchCategoryB, domain.PunchCategoryC:
	default:
		return PunchItem{}, validationf("punch category must be A, B, or C")
	}
	if p.SubsystemID == "" {
		return PunchItem{}, validationf("punch subsystem_id is required")
	}
	var created PunchItem
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreatePunchItem(p)
		return err
	})
	return created, err
}

// ClosePunchItem marks a punch item closed at the given time.
func (s *Service) ClosePunchItem(ctx context.Context, id string, closedAt time.Time) (PunchItem, error) {
	var updated PunchItem
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdatePunchItem(id, func(p *PunchItem) error {
			p.Status = domain.PunchStatusClosed
			p.ClosedDate = &closedAt
			return nil
		})
		return err
	})
	return updated, err
}

// CreatePreservationTask validates and persists a new preservation task.
func (s *Service) CreatePreservationTask(ctx context.Context, task PreservationTask) (PreservationTask, error) {
	if task.TagID == "" {
		return PreservationTask{}, validationf("preservation tag_id is required")
	}
	if task.FrequencyDays <= 0 {
		return PreservationTask{}, validationf("preservation frequency_days must be positive")
	}
	if task.NextDueDate.IsZero() {
		return PreservationTask{}, validationf("preservation next_due_date is required")
	}
	var created PreservationTask
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreatePreservationTask(task)
		return err
	})
	return created, err
}

// CompletePreservationTask records an executed preservation round and rolls
// the next due date forward by the task frequency.
func (s *Service) CompletePreservationTask(ctx context.Context, id string, doneAt time.Time) (PreservationTask, error) {
	var updated PreservationTask
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdatePreservationTask(id, func(t *PreservationTask) error {
			t.LastDoneDate = &doneAt
			t.NextDueDate = doneAt.AddDate(0, 0, t.FrequencyDays)
			t.Status = domain.PreservationStatusOK
			return nil
		})
		return err
	})
	return updated, err
}

// GetProject fetches a project by id.
func (s *Service) GetProject(ctx context.Context, id string) (Project, bool, error) {
	return s.store.GetProject(ctx, id)
}

// GetSystem fetches a system by id.
func (s *Service) GetSystem(ctx context.Context, id string) (System, bool, error) {
	return s.store.GetSystem(ctx, id)
}

// GetSubsystem fetches a subsystem by id.
func (s *Service) GetSubsystem(ctx context.Context, id string) (Subsystem, bool, error) {
	return s.store.GetSubsystem(ctx, id)
}

// ListSystems lists the systems under a project.
func (s *Service) ListSystems(ctx context.Context, projectID string) ([]System, error) {
	return s.store.ListSystems(ctx, projectID)
}

// ListSubsystems lists the subsystems under a system.
func (s *Service) ListSubsystems(ctx context.Context, systemID string) ([]Subsystem, error) {
	return s.store.ListSubsystems(ctx, systemID)
}

// SystemKPIs computes the completion rollup for a system. The system must
// exist; aggregation itself degrades per-collection on partial failures.
func (s *Service) SystemKPIs(ctx context.Context, systemID string) (SystemKPIs, error) {
	if _, ok, err := s.store.GetSystem(ctx, systemID); err != nil {
		return SystemKPIs{}, err
	} else if !ok {
		return SystemKPIs{}, domain.ErrNotFound{Entity: domain.EntitySystem, ID: systemID}
	}
	start := time.Now()
	kpis, err := s.kpis.ForSystem(ctx, systemID)
	if err != nil {
		return SystemKPIs{}, err
	}
	s.metrics.KPIComputed("system", time.Since(start))
	return kpis, nil
}

// SubsystemKPIs computes the completion rollup for a subsystem.
func (s *Service) SubsystemKPIs(ctx context.Context, subsystemID string) (SubsystemKPIs, error) {
	if _, ok, err := s.store.GetSubsystem(ctx, subsystemID); err != nil {
		return SubsystemKPIs{}, err
	} else if !ok {
		return SubsystemKPIs{}, domain.ErrNotFound{Entity: domain.EntitySubsystem, ID: subsystemID}
	}
	start := time.Now()
	kpis, err := s.kpis.ForSubsystem(ctx, subsystemID)
	if err != nil {
		return SubsystemKPIs{}, err
	}
	s.metrics.KPIComputed("subsystem", time.Since(start))
	return kpis, nil
}

// RecordInsight persists a generated insight.
func (s *Service) RecordInsight(ctx context.Context, ins Insight) (Insight, error) {
	if strings.TrimSpace(ins.Title) == "" {
		return Insight{}, validationf("insight title is required")
	}
	if ins.ProjectID == "" {
		return Insight{}, validationf("insight project_id is required")
	}
	var created Insight
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateInsight(ins)
		return err
	})
	return created, err
}

// ListInsights lists a project's insights, newest first.
func (s *Service) ListInsights(ctx context.Context, projectID string) ([]Insight, error) {
	return s.store.ListInsights(ctx, projectID)
}

// ListImportLogs lists a project's import logs, newest first.
func (s *Service) ListImportLogs(ctx context.Context, projectID string) ([]ImportLog, error) {
	return s.store.ListImportLogs(ctx, projectID)
}

// Metrics exposes the configured recorder to adapters.
func (s *Service) Metrics() MetricsRecorder { return s.metrics }

// Logger exposes the service logger to adapters that want a shared root.
func (s *Service) Logger() *zap.Logger { return s.log }
