package domain

import (
	"context"
	"fmt"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateProject(Project) (Project, error)
	UpdateProject(id string, mutator func(*Project) error) (Project, error)
	DeleteProject(id string) error
	CreateSystem(System) (System, error)
	UpdateSystem(id string, mutator func(*System) error) (System, error)
	DeleteSystem(id string) error
	CreateSubsystem(Subsystem) (Subsystem, error)
	UpdateSubsystem(id string, mutator func(*Subsystem) error) (Subsystem, error)
	DeleteSubsystem(id string) error
	CreateTag(Tag) (Tag, error)
	UpdateTag(id string, mutator func(*Tag) error) (Tag, error)
	DeleteTag(id string) error
	CreateInspectionRecord(InspectionRecord) (InspectionRecord, error)
	UpdateInspectionRecord(id string, mutator func(*InspectionRecord) error) (InspectionRecord, error)
	DeleteInspectionRecord(id string) error
	CreatePunchItem(PunchItem) (PunchItem, error)
	UpdatePunchItem(id string, mutator func(*PunchItem) error) (PunchItem, error)
	DeletePunchItem(id string) error
	CreatePreservationTask(PreservationTask) (PreservationTask, error)
	UpdatePreservationTask(id string, mutator func(*PreservationTask) error) (PreservationTask, error)
	DeletePreservationTask(id string) error
	CreateInsight(Insight) (Insight, error)
	CreateImportLog(ImportLog) (ImportLog, error)
	UpdateImportLog(id string, mutator func(*ImportLog) error) (ImportLog, error)
	FindProject(id string) (Project, bool)
	FindSystem(id string) (System, bool)
	FindSubsystem(id string) (Subsystem, bool)
	FindTag(id string) (Tag, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListProjects() []Project
	ListSystems() []System
	ListSubsystems() []Subsystem
	FindProject(id string) (Project, bool)
	FindSystem(id string) (System, bool)
	FindSubsystem(id string) (Subsystem, bool)
}

// Reader exposes the filter-by-foreign-key query shapes the aggregation and
// insight layers depend on. Implementations back each call with a single
// fetch against the store; errors are propagated verbatim to the caller,
// which decides whether to fail or degrade.
type Reader interface {
	GetProject(ctx context.Context, id string) (Project, bool, error)
	GetSystem(ctx context.Context, id string) (System, bool, error)
	GetSubsystem(ctx context.Context, id string) (Subsystem, bool, error)
	ListSystems(ctx context.Context, projectID string) ([]System, error)
	ListSubsystems(ctx context.Context, systemID string) ([]Subsystem, error)
	ListInspectionRecords(ctx context.Context, subsystemIDs []string) ([]InspectionRecord, error)
	ListPunchItems(ctx context.Context, subsystemIDs []string) ([]PunchItem, error)
	ListTags(ctx context.Context, subsystemIDs []string) ([]Tag, error)
	ListPreservationTasks(ctx context.Context, tagIDs []string) ([]PreservationTask, error)
	ListInsights(ctx context.Context, projectID string) ([]Insight, error)
	ListImportLogs(ctx context.Context, projectID string) ([]ImportLog, error)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	Reader
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrInvalidReference is returned when a create or update names a foreign key
// that does not resolve. Bulk imports surface these per row.
type ErrInvalidReference struct {
	Entity  EntityType
	Field   string
	RefID   string
	RefType EntityType
}

func (e ErrInvalidReference) Error() string {
	return fmt.Sprintf("%s.%s references unknown %s %s", e.Entity, e.Field, e.RefType, e.RefID)
}

// ErrDuplicateCode is returned when a unique code constraint is violated.
type ErrDuplicateCode struct {
	Entity EntityType
	Code   string
}

func (e ErrDuplicateCode) Error() string {
	return fmt.Sprintf("%s code %s already exists", e.Entity, e.Code)
}
