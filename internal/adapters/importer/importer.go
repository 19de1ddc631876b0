// Package importer runs bulk loads of ITRs, tags, punch items, and
// preservation tasks from CSV or JSON payloads, tracking each run in an
// import log.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"comptrack/internal/blob"
	"comptrack/pkg/domain"
)

// Entity types accepted by Run.
const (
	EntityITRs         = "itrs"
	EntityTags         = "tags"
	EntityPunchItems   = "punch_items"
	EntityPreservation = "preservation"
)

// maxReportedErrors caps the error list echoed back to the caller. The full
// list still lands in the import log.
const maxReportedErrors = 10

// Request describes one bulk import run.
type Request struct {
	EntityType string
	ImportType string // "csv" or "api"
	ProjectID  string
	SystemID   *string
	FileName   *string
	UserID     string
	Records    []map[string]string
	// Raw is the original uploaded file, archived to blob storage when set.
	Raw []byte
}

// Result summarizes a finished run.
type Result struct {
	ImportID         string                  `json:"import_id"`
	RecordsProcessed int                     `json:"records_processed"`
	RecordsSuccess   int                     `json:"records_success"`
	RecordsFailed    int                     `json:"records_failed"`
	Errors           []domain.ImportRowError `json:"errors,omitempty"`
}

type metricsRecorder interface {
	ImportCompleted(entityType string, succeeded, failed int)
}

// Importer executes bulk imports against the persistent store.
type Importer struct {
	store   domain.PersistentStore
	archive blob.Store
	metrics metricsRecorder
	log     *zap.Logger
}

// New constructs an Importer. archive and metrics may be nil.
func New(store domain.PersistentStore, archive blob.Store, metrics metricsRecorder, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{store: store, archive: archive, metrics: metrics, log: log}
}

// Run validates the request, opens an import log, inserts every record in
// its own transaction, and finalizes the log. A row failure never aborts the
// run; the log ends up "failed" if any row failed and "completed" otherwise.
func (im *Importer) Run(ctx context.Context, req Request) (Result, error) {
	switch req.EntityType {
	case EntityITRs, EntityTags, EntityPunchItems, EntityPreservation:
	default:
		return Result{}, fmt.Errorf("unsupported entity type %q", req.EntityType)
	}
	if req.ProjectID == "" {
		return Result{}, fmt.Errorf("project_id is required")
	}
	if req.UserID == "" {
		return Result{}, fmt.Errorf("user_id is required")
	}

	var logEntry domain.ImportLog
	err := im.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		logEntry, err = tx.CreateImportLog(domain.ImportLog{
			ImportType:       req.ImportType,
			EntityType:       req.EntityType,
			UserID:           req.UserID,
			ProjectID:        &req.ProjectID,
			SystemID:         req.SystemID,
			FileName:         req.FileName,
			Status:           domain.ImportStatusProcessing,
			RecordsProcessed: len(req.Records),
		})
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("open import log: %w", err)
	}

	if im.archive != nil && len(req.Raw) > 0 {
		im.archiveSource(ctx, logEntry.ID, req)
	}

	var success int
	var rowErrors []domain.ImportRowError
	for i, record := range req.Records {
		// Row numbers count the header as line 1 so they match the
		// uploaded file.
		row := i + 2
		if req.ImportType == "api" {
			row = i + 1
		}
		if err := im.insertRecord(ctx, req.EntityType, record); err != nil {
			rowErrors = append(rowErrors, domain.ImportRowError{Row: row, Record: record, Error: err.Error()})
			continue
		}
		success++
	}

	failed := len(rowErrors)
	status := domain.ImportStatusCompleted
	if failed > 0 {
		status = domain.ImportStatusFailed
	}
	err = im.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateImportLog(logEntry.ID, func(l *domain.ImportLog) error {
			l.Status = status
			l.RecordsSuccess = success
			l.RecordsFailed = failed
			l.ErrorDetails = rowErrors
			return nil
		})
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("finalize import log: %w", err)
	}

	if im.metrics != nil {
		im.metrics.ImportCompleted(req.EntityType, success, failed)
	}
	im.log.Info("import finished",
		zap.String("import_id", logEntry.ID),
		zap.String("entity_type", req.EntityType),
		zap.Int("success", success),
		zap.Int("failed", failed))

	reported := rowErrors
	if len(reported) > maxReportedErrors {
		reported = reported[:maxReportedErrors]
	}
	return Result{
		ImportID:         logEntry.ID,
		RecordsProcessed: len(req.Records),
		RecordsSuccess:   success,
		RecordsFailed:    failed,
		Errors:           reported,
	}, nil
}

// archiveSource keeps the original upload next to the import log. Failure
// only logs; the import itself proceeds.
func (im *Importer) archiveSource(ctx context.Context, importID string, req Request) {
	name := "payload"
	if req.FileName != nil && *req.FileName != "" {
		name = *req.FileName
	}
	key := fmt.Sprintf("imports/%s/%s", importID, name)
	contentType := "text/csv"
	if req.ImportType == "api" {
		contentType = "application/json"
	}
	_, err := im.archive.Put(ctx, key, bytes.NewReader(req.Raw), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"project_id": req.ProjectID, "entity_type": req.EntityType},
	})
	if err != nil {
		im.log.Warn("archiving import source failed", zap.String("key", key), zap.Error(err))
	}
}

func (im *Importer) insertRecord(ctx context.Context, entityType string, record map[string]string) error {
	return im.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		switch entityType {
		case EntityITRs:
			return insertITR(tx, record)
		case EntityTags:
			return insertTag(tx, record)
		case EntityPunchItems:
			return insertPunchItem(tx, record)
		case EntityPreservation:
			return insertPreservationTask(tx, record)
		}
		return fmt.Errorf("unsupported entity type %q", entityType)
	})
}

func optional(record map[string]string, field string) *string {
	if v := record[field]; v != "" {
		return &v
	}
	return nil
}

func optionalDate(record map[string]string, field string) (*time.Time, error) {
	v := record[field]
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", field, v)
	}
	return &t, nil
}

func insertITR(tx domain.Transaction, record map[string]string) error {
	if record["itr_code"] == "" {
		return fmt.Errorf("itr_code is required")
	}
	itrType := domain.ITRType(record["itr_type"])
	if itrType != domain.ITRTypeA && itrType != domain.ITRTypeB {
		return fmt.Errorf("invalid itr_type %q", record["itr_type"])
	}
	status := domain.ITRStatus(record["status"])
	if status == "" {
		status = domain.ITRStatusNotStarted
	}
	_, err := tx.CreateInspectionRecord(domain.InspectionRecord{
		ITRCode:     record["itr_code"],
		ITRType:     itrType,
		Discipline:  domain.Discipline(record["discipline"]),
		Status:      status,
		SubsystemID: record["subsystem_id"],
		Comments:    optional(record, "comments"),
	})
	return err
}

func insertTag(tx domain.Transaction, record map[string]string) error {
	if record["tag_code"] == "" {
		return fmt.Errorf("tag_code is required")
	}
	criticality := domain.Criticality(record["criticality"])
	if criticality == "" {
		criticality = domain.CriticalityMedium
	}
	_, err := tx.CreateTag(domain.Tag{
		TagCode:     record["tag_code"],
		Discipline:  domain.Discipline(record["discipline"]),
		Description: optional(record, "description"),
		DeviceType:  optional(record, "device_type"),
		Criticality: criticality,
		SubsystemID: record["subsystem_id"],
	})
	return err
}

func insertPunchItem(tx domain.Transaction, record map[string]string) error {
	if record["description"] == "" {
		return fmt.Errorf("description is required")
	}
	category := domain.PunchCategory(record["category"])
	switch category {
	case domain.PunchCategoryA, domain.PunchCategoryB, domain.PunchCategoryC:
	default:
		return fmt.Errorf("invalid category %q", record["category"])
	}
	status := domain.PunchStatus(record["status"])
	if status == "" {
		status = domain.PunchStatusOpen
	}
	dueDate, err := optionalDate(record, "due_date")
	if err != nil {
		return err
	}
	_, err = tx.CreatePunchItem(domain.PunchItem{
		Description: record["description"],
		Category:    category,
		Status:      status,
		SubsystemID: record["subsystem_id"],
		TagID:       optional(record, "tag_id"),
		RaisedBy:    optional(record, "raised_by"),
		DueDate:     dueDate,
	})
	return err
}

func insertPreservationTask(tx domain.Transaction, record map[string]string) error {
	frequency, err := strconv.Atoi(record["frequency_days"])
	if err != nil {
		return fmt.Errorf("invalid frequency_days %q", record["frequency_days"])
	}
	nextDue, err := time.Parse("2006-01-02", record["next_due_date"])
	if err != nil {
		return fmt.Errorf("invalid next_due_date %q", record["next_due_date"])
	}
	status := domain.PreservationStatus(record["status"])
	if status == "" {
		status = domain.PreservationStatusOK
	}
	_, err = tx.CreatePreservationTask(domain.PreservationTask{
		TagID:         record["tag_id"],
		Description:   record["description"],
		FrequencyDays: frequency,
		NextDueDate:   nextDue,
		Status:        status,
	})
	return err
}
