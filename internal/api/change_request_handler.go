package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/importer"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/service/workflow"
)

const (
	actionDecide = "decide"

	// importFileField is the multipart field carrying the spreadsheet.
	importFileField = "file"

	// MaxImportUploadBytes caps the size of an import upload.
	MaxImportUploadBytes = 10 << 20
)

// ChangeRequestHandler serves the catalog change-request workflow.
type ChangeRequestHandler struct {
	workflow      workflow.Service
	importMaxRows int
	logger        *slog.Logger
}

// NewChangeRequestHandler creates a new ChangeRequestHandler. importMaxRows
// limits the data rows accepted by Import; zero means unlimited.
func NewChangeRequestHandler(
	svc workflow.Service,
	importMaxRows int,
	logger *slog.Logger,
) *ChangeRequestHandler {
	if svc == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("workflow cannot be nil for ChangeRequestHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ChangeRequestHandler{
		workflow:      svc,
		importMaxRows: importMaxRows,
		logger:        logger.With(slog.String("component", "change_request_handler")),
	}
}

// Submit handles POST /change-requests
func (h *ChangeRequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	var req SubmitChangeRequestRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.workflow.Submit(r.Context(), identity, workflow.SubmitInput{
		Kind:       req.Kind,
		TargetCode: req.TargetCode,
		Payload:    req.Payload,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit change request")
		return
	}

	log.Info("change request submitted",
		slog.String("change_request_id", created.ID.String()),
		slog.String("kind", string(created.Kind)))
	shared.RespondWithJSON(w, r, http.StatusCreated, created)
}

// Import handles POST /change-requests:import with a multipart CSV or XLSX upload.
func (h *ChangeRequestHandler) Import(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImportUploadBytes)
	file, header, err := r.FormFile(importFileField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			shared.RespondWithErrorAndLog(w, r, http.StatusRequestEntityTooLarge, "Import file is too large", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "A file upload in the \"file\" field is required", err)
		return
	}
	defer func() { _ = file.Close() }()

	format, err := importer.DetectFormat(header.Filename)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	rows, err := importer.Parse(format, file, h.importMaxRows)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read import file")
		return
	}

	result, err := h.workflow.Import(r.Context(), identity, rows)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to import change requests")
		return
	}

	log.Info("change requests imported",
		slog.String("format", string(format)),
		slog.Int("submitted", result.Submitted),
		slog.Int("skipped", result.Skipped))
	shared.RespondWithJSON(w, r, http.StatusCreated, result)
}

// List handles GET /change-requests
func (h *ChangeRequestHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	page, err := parsePageRequest(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var filter workflow.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := domain.ParseChangeRequestStatus(raw)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		filter.Status = &status
	}

	result, err := h.workflow.List(r.Context(), identity, filter, page)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list change requests")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Get handles GET /change-requests/{id}
func (h *ChangeRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	req, err := h.workflow.Get(r.Context(), identity, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get change request")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, req)
}

// Action handles POST /change-requests/{id}:{action}
func (h *ChangeRequestHandler) Action(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, action, err := getPathAction(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if action != actionDecide {
		shared.RespondWithError(w, r, http.StatusNotFound, "Unknown change request action")
		return
	}

	identity, ok := requireIdentity(w, r, log)
	if !ok {
		return
	}

	var req DecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resolved, err := h.workflow.Decide(r.Context(), identity, id, *req.Approved, req.Reason)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to decide change request")
		return
	}

	log.Info("change request decided",
		slog.String("change_request_id", resolved.ID.String()),
		slog.String("status", string(resolved.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, resolved)
}
