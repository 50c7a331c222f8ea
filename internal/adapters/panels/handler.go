// Package panels exposes the lifecycle, import, archive and export
// operations over HTTP.
package panels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"panelflow/internal/blob"
	"panelflow/internal/core"
	"panelflow/internal/infra/lock"
	"panelflow/internal/logging"
	"panelflow/internal/reconcile"
	"panelflow/pkg/domain"
)

// Request headers carrying the caller identity. Authentication happens
// upstream; the role is trusted as given.
const (
	RoleHeader = "X-Panelflow-Role"
	UserHeader = "X-Panelflow-User"
)

const (
	defaultMaxUpload = 32 << 20
	defaultLinkTTL   = 15 * time.Minute
)

// PanelService is the lifecycle side of the core service.
type PanelService interface {
	Catalog
	GetPanel(ctx context.Context, id string) (core.Panel, error)
	AllowedNextStates(ctx context.Context, panelID string, role core.Role) ([]core.Status, error)
	TransitionPanel(ctx context.Context, req domain.TransitionRequest) (core.Panel, core.Result, error)
}

// Importer reconciles uploaded payloads.
type Importer interface {
	ImportPanels(ctx context.Context, req reconcile.Request) (reconcile.Report, error)
	ImportItems(ctx context.Context, req reconcile.Request) (reconcile.Report, error)
}

// ArchiveBrowser lists archived uploads and signs download links.
type ArchiveBrowser interface {
	List(ctx context.Context, kind string) ([]blob.Info, error)
	Link(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Handler serves /api/v1. Archives and Exports are optional; their routes
// answer 404 when unset.
type Handler struct {
	Service        PanelService
	Imports        Importer
	Archives       ArchiveBrowser
	Exports        ExportScheduler
	Logger         *zap.Logger
	MaxUploadBytes int64
}

// NewHandler constructs a handler over service and importer.
func NewHandler(service PanelService, imports Importer) *Handler {
	return &Handler{Service: service, Imports: imports}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil || h.Imports == nil {
		writeError(w, http.StatusInternalServerError, "panel service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/statuses":
		h.get(w, r, h.handleStatuses)
	case path == "/api/v1/panels":
		h.get(w, r, h.handleListPanels)
	case path == "/api/v1/panels/export":
		h.get(w, r, h.handleExportWorkbook)
	case path == "/api/v1/panels/imports":
		h.post(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleImport(w, r, reconcile.KindPanels) })
	case path == "/api/v1/items/imports":
		h.post(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleImport(w, r, reconcile.KindItems) })
	case strings.HasPrefix(path, "/api/v1/panels/"):
		h.handlePanel(w, r, strings.TrimPrefix(path, "/api/v1/panels/"))
	case path == "/api/v1/archives" || path == "/api/v1/archives/link":
		if h.Archives == nil {
			http.NotFound(w, r)
			return
		}
		if path == "/api/v1/archives" {
			h.get(w, r, h.handleListArchives)
		} else {
			h.get(w, r, h.handleArchiveLink)
		}
	case path == "/api/v1/exports" || strings.HasPrefix(path, "/api/v1/exports/"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fn(w, r)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fn(w, r)
}

func (h *Handler) logger() *zap.Logger { return logging.OrNop(h.Logger) }

func (h *Handler) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": domain.StatusCatalog(),
		"roles":    domain.Roles(),
	})
}

func filterFrom(r *http.Request) (core.PanelFilter, error) {
	q := r.URL.Query()
	filter := core.PanelFilter{ProjectID: q.Get("project"), BuildingID: q.Get("building")}
	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Status = status
	}
	return filter, nil
}

func (h *Handler) handleListPanels(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"panels": h.Service.ListPanels(r.Context(), filter)})
}

func (h *Handler) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, _, err := PanelWorkbook(r.Context(), h.Service, filter)
	if err != nil {
		h.logger().Error("render panel workbook", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render workbook failed")
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="panels.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" || len(segments) > 2 {
		writeError(w, http.StatusNotFound, "panel endpoint not found")
		return
	}
	if len(segments) == 1 {
		h.get(w, r, func(w http.ResponseWriter, r *http.Request) {
			panel, err := h.Service.GetPanel(r.Context(), id)
			if err != nil {
				h.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"panel": panel})
		})
		return
	}
	switch segments[1] {
	case "next-states":
		h.get(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleNextStates(w, r, id) })
	case "transitions":
		h.post(w, r, func(w http.ResponseWriter, r *http.Request) { h.handleTransition(w, r, id) })
	default:
		writeError(w, http.StatusNotFound, "panel endpoint not found")
	}
}

func roleFrom(r *http.Request) (core.Role, bool) {
	role := strings.TrimSpace(r.Header.Get(RoleHeader))
	return core.Role(role), role != ""
}

func (h *Handler) handleNextStates(w http.ResponseWriter, r *http.Request, id string) {
	role, ok := roleFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, RoleHeader+" header required")
		return
	}
	states, err := h.Service.AllowedNextStates(r.Context(), id, role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"panel_id": id, "role": role, "next_states": states})
}

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, id string) {
	role, ok := roleFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, RoleHeader+" header required")
		return
	}
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transition payload")
		return
	}
	status, ok := domain.ParseStatus(body.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", body.Status))
		return
	}
	actor := strings.TrimSpace(r.Header.Get(UserHeader))
	if actor == "" {
		actor = string(role)
	}
	panel, res, err := h.Service.TransitionPanel(r.Context(), domain.TransitionRequest{
		PanelID: id,
		Status:  status,
		Role:    role,
		Actor:   actor,
		Notes:   body.Notes,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"panel": panel, "violations": res.Violations})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var notFound domain.ErrNotFound
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTerminalState), errors.As(err, &violation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lock.ErrNotAcquired), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger().Error("panel request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// readUpload accepts a multipart form with a "file" part or a raw body
// named by the filename query parameter.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (reconcile.Request, error) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	q := r.URL.Query()
	req := reconcile.Request{
		Filename:    q.Get("filename"),
		ContentType: r.Header.Get("Content-Type"),
		ProjectID:   q.Get("project"),
		BuildingID:  q.Get("building"),
	}
	if mediaType, _, err := mime.ParseMediaType(req.ContentType); err == nil && mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return req, fmt.Errorf("read multipart file: %w", err)
		}
		defer func() { _ = file.Close() }()
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Payload, err = io.ReadAll(file)
		if err != nil {
			return req, fmt.Errorf("read multipart file: %w", err)
		}
		return req, nil
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return req, fmt.Errorf("read body: %w", err)
	}
	req.Payload = payload
	return req, nil
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, kind reconcile.Kind) {
	req, err := h.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	var report reconcile.Report
	if kind == reconcile.KindItems {
		report, err = h.Imports.ImportItems(r.Context(), req)
	} else {
		report, err = h.Imports.ImportPanels(r.Context(), req)
	}
	var parseErr reconcile.ParseError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"report": report, "error": err.Error()})
	case reconcile.IsPersistenceError(err):
		writeJSON(w, http.StatusBadGateway, map[string]any{"report": report, "error": err.Error()})
	default:
		h.logger().Error("import failed", zap.String("kind", string(kind)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"report": report, "error": err.Error()})
	}
}

func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.Archives.List(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		h.logger().Error("list archives", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list archives failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": infos})
}

func (h *Handler) handleArchiveLink(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key required")
		return
	}
	link, err := h.Archives.Link(r.Context(), key, defaultLinkTTL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"key": key, "url": link, "expires_in": int(defaultLinkTTL.Seconds())})
	case errors.Is(err, blob.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, blob.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "archive store cannot sign links")
	default:
		h.logger().Error("sign archive link", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sign link failed")
	}
}

type exportRequest struct {
	Project  string `json:"project"`
	Building string `json:"building"`
	Status   string `json:"status"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/exports" {
		h.post(w, r, func(w http.ResponseWriter, r *http.Request) {
			var body exportRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid export payload")
				return
			}
			filter := core.PanelFilter{ProjectID: body.Project, BuildingID: body.Building}
			if body.Status != "" {
				status, ok := domain.ParseStatus(body.Status)
				if !ok {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", body.Status))
					return
				}
				filter.Status = status
			}
			record, err := h.Exports.EnqueueExport(r.Context(), ExportInput{Filter: filter, RequestedBy: r.Header.Get(UserHeader)})
			if errors.Is(err, ErrQueueFull) {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
		})
		return
	}
	h.get(w, r, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(path, "/api/v1/exports/")
		record, ok := h.Exports.GetExport(id)
		if !ok {
			writeError(w, http.StatusNotFound, "export not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"export": record})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
