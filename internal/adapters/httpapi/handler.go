// Package httpapi exposes the comptrack service over a JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"comptrack/internal/adapters/export"
	"comptrack/internal/adapters/importer"
	"comptrack/internal/core"
	"comptrack/internal/insight"
	"comptrack/internal/session"
	"comptrack/pkg/domain"
)

// maxUploadBytes caps import payload size.
const maxUploadBytes = 10 << 20

// Handler wires the HTTP routes to the service layer.
type Handler struct {
	svc       *core.Service
	responder *insight.Responder
	importer  *importer.Importer
	exporter  *export.Exporter
	auth      session.Authenticator
	log       *zap.Logger
}

// New constructs the API handler.
func New(svc *core.Service, responder *insight.Responder, imp *importer.Importer, exp *export.Exporter, auth session.Authenticator, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:       svc,
		responder: responder,
		importer:  imp,
		exporter:  exp,
		auth:      auth,
		log:       log,
	}
}

// Routes returns the full API surface with authentication applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/projects", h.createProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", h.getProject)
	mux.HandleFunc("GET /api/v1/projects/{id}/systems", h.listSystems)
	mux.HandleFunc("GET /api/v1/projects/{id}/insights", h.listInsights)
	mux.HandleFunc("GET /api/v1/projects/{id}/import-logs", h.listImportLogs)
	mux.HandleFunc("GET /api/v1/projects/{id}/export", h.exportProject)

	mux.HandleFunc("POST /api/v1/systems", h.createSystem)
	mux.HandleFunc("GET /api/v1/systems/{id}", h.getSystem)
	mux.HandleFunc("GET /api/v1/systems/{id}/subsystems", h.listSubsystems)
	mux.HandleFunc("GET /api/v1/systems/{id}/kpis", h.systemKPIs)

	mux.HandleFunc("POST /api/v1/subsystems", h.createSubsystem)
	mux.HandleFunc("GET /api/v1/subsystems/{id}/kpis", h.subsystemKPIs)

	mux.HandleFunc("POST /api/v1/tags", h.createTag)
	mux.HandleFunc("POST /api/v1/itrs", h.createITR)
	mux.HandleFunc("PATCH /api/v1/itrs/{id}/status", h.updateITRStatus)
	mux.HandleFunc("POST /api/v1/punch-items", h.createPunchItem)
	mux.HandleFunc("POST /api/v1/punch-items/{id}/close", h.closePunchItem)
	mux.HandleFunc("POST /api/v1/preservation-tasks", h.createPreservationTask)
	mux.HandleFunc("POST /api/v1/preservation-tasks/{id}/complete", h.completePreservationTask)

	mux.HandleFunc("POST /api/v1/ai/query", h.aiQuery)
	mux.HandleFunc("POST /api/v1/import", h.importData)

	return h.authenticate(mux)
}

// authenticate resolves the bearer token and stores the user in the context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithUser(r.Context(), user)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var notFound domain.ErrNotFound
	var badRef domain.ErrInvalidReference
	var dup domain.ErrDuplicateCode
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &badRef), errors.Is(err, core.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &dup):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req domain.Project
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateProject(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	project, ok, err := h.svc.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *Handler) createSystem(w http.ResponseWriter, r *http.Request) {
	var req domain.System
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateSystem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) getSystem(w http.ResponseWriter, r *http.Request) {
	system, ok, err := h.svc.GetSystem(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "system not found")
		return
	}
	writeJSON(w, http.StatusOK, system)
}

func (h *Handler) listSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.svc.ListSystems(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, systems)
}

func (h *Handler) createSubsystem(w http.ResponseWriter, r *http.Request) {
	var req domain.Subsystem
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateSubsystem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listSubsystems(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubsystems(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) systemKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.svc.SystemKPIs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (h *Handler) subsystemKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.svc.SubsystemKPIs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (h *Handler) createTag(w http.ResponseWriter, r *http.Request) {
	var req domain.Tag
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateTag(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) createITR(w http.ResponseWriter, r *http.Request) {
	var req domain.InspectionRecord
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateInspectionRecord(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateITRStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.ITRStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.svc.UpdateInspectionRecord(r.Context(), r.PathValue("id"), func(itr *domain.InspectionRecord) error {
		itr.Status = req.Status
		return nil
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) createPunchItem(w http.ResponseWriter, r *http.Request) {
	var req domain.PunchItem
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreatePunchItem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) closePunchItem(w http.ResponseWriter, r *http.Request) {
	closed, err := h.svc.ClosePunchItem(r.Context(), r.PathValue("id"), nowUTC())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (h *Handler) createPreservationTask(w http.ResponseWriter, r *http.Request) {
	var req domain.PreservationTask
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreatePreservationTask(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) completePreservationTask(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.CompletePreservationTask(r.Context(), r.PathValue("id"), nowUTC())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) listInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.svc.ListInsights(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (h *Handler) listImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.ListImportLogs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) aiQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question    string  `json:"question"`
		SystemID    string  `json:"system_id"`
		SubsystemID *string `json:"subsystem_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.SystemID == "" {
		writeError(w, http.StatusBadRequest, "system_id is required")
		return
	}
	answer, err := h.responder.AnswerQuestion(r.Context(), insight.Query{
		Question:    req.Question,
		SystemID:    req.SystemID,
		SubsystemID: req.SubsystemID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// importData accepts either a multipart CSV upload or a JSON record batch,
// mirroring the two ingestion paths field teams use.
func (h *Handler) importData(w http.ResponseWriter, r *http.Request) {
	user, _ := session.UserFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	var req importer.Request
	var err error
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		req, err = parseMultipartImport(r)
	case strings.HasPrefix(contentType, "application/json"):
		req, err = parseJSONImport(r)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.EntityType {
	case importer.EntityITRs, importer.EntityTags, importer.EntityPunchItems, importer.EntityPreservation:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported entity type %q", req.EntityType))
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	req.UserID = user.ID

	result, err := h.importer.Run(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseMultipartImport(r *http.Request) (importer.Request, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return importer.Request{}, fmt.Errorf("parse upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return importer.Request{}, fmt.Errorf("missing file field")
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return importer.Request{}, fmt.Errorf("read upload: %w", err)
	}
	records, err := importer.ParseCSV(string(raw))
	if err != nil {
		return importer.Request{}, err
	}

	req := importer.Request{
		EntityType: r.FormValue("entity_type"),
		ImportType: "csv",
		ProjectID:  r.FormValue("project_id"),
		Records:    records,
		Raw:        raw,
	}
	if name := header.Filename; name != "" {
		req.FileName = &name
	}
	if systemID := r.FormValue("system_id"); systemID != "" {
		req.SystemID = &systemID
	}
	return req, nil
}

func parseJSONImport(r *http.Request) (importer.Request, error) {
	var body struct {
		EntityType string           `json:"entity_type"`
		ProjectID  string           `json:"project_id"`
		SystemID   *string          `json:"system_id"`
		Data       []map[string]any `json:"data"`
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return importer.Request{}, fmt.Errorf("read request body: %w", err)
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return importer.Request{}, fmt.Errorf("decode request body: %w", err)
	}
	if body.Data == nil {
		return importer.Request{}, fmt.Errorf("data array is required")
	}

	records := make([]map[string]string, 0, len(body.Data))
	for _, item := range body.Data {
		record := make(map[string]string, len(item))
		for k, v := range item {
			record[k] = stringifyField(v)
		}
		records = append(records, record)
	}
	return importer.Request{
		EntityType: body.EntityType,
		ImportType: "api",
		ProjectID:  body.ProjectID,
		SystemID:   body.SystemID,
		Records:    records,
		Raw:        raw,
	}, nil
}

// stringifyField flattens JSON scalars to the string form the importer
// expects. Numbers keep their literal form without a float suffix.
func stringifyField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

func (h *Handler) exportProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	var systemID *string
	if v := r.URL.Query().Get("system_id"); v != "" {
		systemID = &v
	}
	bundle, err := h.exporter.ProjectBundle(r.Context(), projectID, systemID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "comptrack-export-"+projectID+".json"))
	writeJSON(w, http.StatusOK, bundle)
}
