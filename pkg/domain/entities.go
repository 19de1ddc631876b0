// Package domain defines the persistent entities, enumerations, and
// persistence contracts shared by the comptrack core.
package domain

import "time"

// EntityType identifies the type of record stored in the core schema.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntitySystem identifies a system record.
	EntitySystem EntityType = "system"
	// EntitySubsystem identifies a subsystem record.
	EntitySubsystem EntityType = "subsystem"
	// EntityTag identifies an equipment tag record.
	EntityTag EntityType = "tag"
	// EntityInspectionRecord identifies an ITR record.
	EntityInspectionRecord EntityType = "itr"
	// EntityPunchItem identifies a punch list item record.
	EntityPunchItem EntityType = "punch_item"
	// EntityPreservationTask identifies a preservation task record.
	EntityPreservationTask EntityType = "preservation_task"
	// EntityInsight identifies an AI insight record.
	EntityInsight EntityType = "insight"
	// EntityImportLog identifies a bulk import log record.
	EntityImportLog EntityType = "import_log"
	// EntityUserProfile identifies a user profile record.
	EntityUserProfile EntityType = "user_profile"
)

// ProjectStatus enumerates project lifecycle phases.
type ProjectStatus string

// Canonical project statuses.
const (
	ProjectStatusPlanning    ProjectStatus = "PLANNING"
	ProjectStatusExecution   ProjectStatus = "EXECUTION"
	ProjectStatusCompletions ProjectStatus = "COMPLETIONS"
	ProjectStatusClosed      ProjectStatus = "CLOSED"
)

// SystemStatus enumerates system and subsystem completion states.
type SystemStatus string

// Canonical system statuses, shared by subsystems.
const (
	SystemStatusNotStarted           SystemStatus = "NOT_STARTED"
	SystemStatusInProgress           SystemStatus = "IN_PROGRESS"
	SystemStatusReadyForEnergization SystemStatus = "READY_FOR_ENERGIZATION"
	SystemStatusEnergized            SystemStatus = "ENERGIZED"
)

// Criticality classifies systems and tags by severity.
type Criticality string

// Criticality levels.
const (
	CriticalityLow    Criticality = "LOW"
	CriticalityMedium Criticality = "MEDIUM"
	CriticalityHigh   Criticality = "HIGH"
)

// Discipline identifies the engineering discipline of a tag or ITR.
type Discipline string

// Canonical disciplines.
const (
	DisciplineMechanical      Discipline = "MECH"
	DisciplineElectrical      Discipline = "ELEC"
	DisciplineInstrumentation Discipline = "INST"
	DisciplineCivil           Discipline = "CIVIL"
	DisciplinePiping          Discipline = "PIPE"
	DisciplineOther           Discipline = "OTHER"
)

// ITRType distinguishes construction (A) from precommissioning (B) records.
type ITRType string

// ITR types.
const (
	ITRTypeA ITRType = "A"
	ITRTypeB ITRType = "B"
)

// ITRStatus enumerates the workflow states of an inspection record.
// Transitions are externally driven and not validated by the core.
type ITRStatus string

// Canonical ITR statuses.
const (
	ITRStatusNotStarted ITRStatus = "NOT_STARTED"
	ITRStatusInProgress ITRStatus = "IN_PROGRESS"
	ITRStatusCompleted  ITRStatus = "COMPLETED"
	ITRStatusRejected   ITRStatus = "REJECTED"
)

// PunchCategory classifies punch items; category A blocks energization.
type PunchCategory string

// Punch categories.
const (
	PunchCategoryA PunchCategory = "A"
	PunchCategoryB PunchCategory = "B"
	PunchCategoryC PunchCategory = "C"
)

// PunchStatus enumerates punch item workflow states.
type PunchStatus string

// Canonical punch statuses. OPEN and IN_PROGRESS both count as open.
const (
	PunchStatusOpen       PunchStatus = "OPEN"
	PunchStatusInProgress PunchStatus = "IN_PROGRESS"
	PunchStatusClosed     PunchStatus = "CLOSED"
)

// PreservationStatus enumerates preservation task states.
type PreservationStatus string

// Canonical preservation statuses. A task is overdue by status alone,
// independent of its next due date.
const (
	PreservationStatusOK      PreservationStatus = "OK"
	PreservationStatusOverdue PreservationStatus = "OVERDUE"
)

// UserRole enumerates access roles carried on user profiles.
type UserRole string

// Canonical user roles.
const (
	RoleAdmin   UserRole = "ADMIN"
	RoleManager UserRole = "MANAGER"
	RoleQAQC    UserRole = "QAQC"
	RolePrecom  UserRole = "PRECOM"
	RoleViewer  UserRole = "VIEWER"
)

// ImportStatus enumerates bulk import log states.
type ImportStatus string

// Import log statuses.
const (
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is the top-level container for systems; its code is unique.
type Project struct {
	Base
	Code        string        `json:"code"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Location    *string       `json:"location,omitempty"`
	Status      ProjectStatus `json:"status"`
}

// System groups subsystems under a project and carries a criticality class.
type System struct {
	Base
	Code        string       `json:"code"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Criticality Criticality  `json:"criticality"`
	Status      SystemStatus `json:"status"`
	ProjectID   string       `json:"project_id"`
}

// Subsystem is the unit that ITRs, punch items, and tags attach to.
type Subsystem struct {
	Base
	Code             string       `json:"code"`
	Name             string       `json:"name"`
	Description      *string      `json:"description,omitempty"`
	Status           SystemStatus `json:"status"`
	SystemID         string       `json:"system_id"`
	PlannedStartDate *time.Time   `json:"planned_start_date,omitempty"`
	PlannedEndDate   *time.Time   `json:"planned_end_date,omitempty"`
	ActualStartDate  *time.Time   `json:"actual_start_date,omitempty"`
	ActualEndDate    *time.Time   `json:"actual_end_date,omitempty"`
}

// Tag is an equipment instance within a subsystem; preservation tasks hang off tags.
type Tag struct {
	Base
	TagCode     string      `json:"tag_code"`
	Discipline  Discipline  `json:"discipline"`
	Description *string     `json:"description,omitempty"`
	DeviceType  *string     `json:"device_type,omitempty"`
	Criticality Criticality `json:"criticality"`
	SubsystemID string      `json:"subsystem_id"`
}

// InspectionRecord is a discrete verification task (ITR) of type A or B.
type InspectionRecord struct {
	Base
	ITRCode     string     `json:"itr_code"`
	ITRType     ITRType    `json:"itr_type"`
	Discipline  Discipline `json:"discipline"`
	Status      ITRStatus  `json:"status"`
	SubsystemID string     `json:"subsystem_id"`
	TagID       *string    `json:"tag_id,omitempty"`
	Comments    *string    `json:"comments,omitempty"`
}

// PunchItem is a defect or open action item against a subsystem.
type PunchItem struct {
	Base
	Description string        `json:"description"`
	Category    PunchCategory `json:"category"`
	Status      PunchStatus   `json:"status"`
	SubsystemID string        `json:"subsystem_id"`
	TagID       *string       `json:"tag_id,omitempty"`
	RaisedBy    *string       `json:"raised_by,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	ClosedDate  *time.Time    `json:"closed_date,omitempty"`
}

// IsOpen reports whether the punch item still requires action.
func (p PunchItem) IsOpen() bool {
	return p.Status == PunchStatusOpen || p.Status == PunchStatusInProgress
}

// PreservationTask is a recurring maintenance action on a tag.
type PreservationTask struct {
	Base
	Description   string             `json:"description"`
	FrequencyDays int                `json:"frequency_days"`
	LastDoneDate  *time.Time         `json:"last_done_date,omitempty"`
	NextDueDate   time.Time          `json:"next_due_date"`
	Status        PreservationStatus `json:"status"`
	TagID         string             `json:"tag_id"`
}

// Insight is an answer produced by the insight responder. Append-only.
type Insight struct {
	Base
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	ProjectID   string  `json:"project_id"`
	SystemID    *string `json:"system_id,omitempty"`
	SubsystemID *string `json:"subsystem_id,omitempty"`
}

// ImportRowError captures a single failed row during a bulk import.
type ImportRowError struct {
	Row    int               `json:"row"`
	Record map[string]string `json:"record,omitempty"`
	Error  string            `json:"error"`
}

// ImportLog summarizes one bulk import run. Append-only (status and counts
// are finalized once at the end of the run).
type ImportLog struct {
	Base
	ImportType       string           `json:"import_type"`
	EntityType       string           `json:"entity_type"`
	UserID           string           `json:"user_id"`
	ProjectID        *string          `json:"project_id,omitempty"`
	SystemID         *string          `json:"system_id,omitempty"`
	FileName         *string          `json:"file_name,omitempty"`
	Status           ImportStatus     `json:"status"`
	RecordsProcessed int              `json:"records_processed"`
	RecordsSuccess   int              `json:"records_success"`
	RecordsFailed    int              `json:"records_failed"`
	ErrorDetails     []ImportRowError `json:"error_details,omitempty"`
}

// UserProfile mirrors the identity rows owned by the auth collaborator.
type UserProfile struct {
	Base
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
