// Package api exposes HTTP handlers for the care schedule service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/careplan/internal/auth"
	"example.com/careplan/internal/domain"
	"example.com/careplan/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	windows domain.StatusWindows
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, windows domain.StatusWindows) *Handler {
	return &Handler{service: service, windows: windows}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/templates", h.templates)
	mux.HandleFunc("/v1/templates/", h.templateByID)
	mux.HandleFunc("/v1/schedule/materialize", h.materialize)
	mux.HandleFunc("/v1/instances", h.listInstances)
	mux.HandleFunc("/v1/instances/", h.instanceByID)
	mux.HandleFunc("/v1/day-status", h.dayStatus)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) templates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createTemplate(w, r)
	case http.MethodGet:
		h.listTemplates(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) templateByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/templates/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing template id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/deactivate"); ok {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.deactivateTemplate(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTemplate(w, r, rest)
	case http.MethodPut:
		h.updateTemplate(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeSchedulesWrite)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	tmpl, err := h.service.CreateTemplate(r.Context(), domain.CreateTemplateInput{
		Payload:       req.payload(),
		ActivityType:  domain.ActivityType(req.ActivityType),
		PreferredTime: req.PreferredTime,
		Weekdays:      req.weekdays(),
		CreatedBy:     claims.Subject,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTemplateView(*tmpl))
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesRead, auth.ScopeSchedulesWrite); !ok {
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	templates, err := h.service.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]TemplateView, 0, len(templates))
	for _, t := range templates {
		items = append(items, toTemplateView(t))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesRead, auth.ScopeSchedulesWrite); !ok {
		return
	}

	tmpl, err := h.service.GetTemplate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateView(*tmpl))
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesWrite); !ok {
		return
	}

	var req TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	tmpl, removed, err := h.service.UpdateTemplate(r.Context(), id, domain.UpdateTemplateInput{
		Payload:       req.payload(),
		ActivityType:  domain.ActivityType(req.ActivityType),
		PreferredTime: req.PreferredTime,
		Weekdays:      req.weekdays(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TemplateMutationResponse{
		Template:    toTemplateView(*tmpl),
		Invalidated: removed,
	})
}

func (h *Handler) deactivateTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesWrite); !ok {
		return
	}

	removed, err := h.service.OnTemplateDeactivated(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeactivateResponse{
		TemplateID:  id,
		Active:      false,
		Invalidated: removed,
	})
}

func (h *Handler) materialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeSchedulesWrite); !ok {
		return
	}

	var req MaterializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	date, err := time.Parse(domain.DateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}

	created, err := h.service.Materialize(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MaterializeResponse{Date: req.Date, Created: created})
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeSchedulesRead, auth.ScopeSchedulesWrite, auth.ScopeCareRecord); !ok {
		return
	}

	query := r.URL.Query()
	from, err := time.Parse(domain.DateLayout, query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse(domain.DateLayout, query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "to must be YYYY-MM-DD")
		return
	}

	limit := 20
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	instances, next, err := h.service.ListInstances(r.Context(), from, to, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]InstanceView, 0, len(instances))
	for _, inst := range instances {
		items = append(items, toInstanceView(inst))
	}
	writeJSON(w, http.StatusOK, ListInstancesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) instanceByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/instances/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing instance id")
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.getInstance(w, r, id)
		return
	}

	switch {
	case action == "complete" && r.Method == http.MethodPost:
		h.completeInstance(w, r, id)
	case action == "complete-open-slot" && r.Method == http.MethodPost:
		h.completeOpenSlot(w, r, id)
	case action == "execution" && r.Method == http.MethodPut:
		h.updateExecution(w, r, id)
	case action == "clear" && r.Method == http.MethodPost:
		h.clearInstance(w, r, id)
	case action == "omit" && r.Method == http.MethodPost:
		h.omitInstance(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancelInstance(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesRead, auth.ScopeSchedulesWrite, auth.ScopeCareRecord); !ok {
		return
	}

	inst, err := h.service.GetInstance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) completeInstance(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeCareRecord, auth.ScopeSchedulesWrite)
	if !ok {
		return
	}

	var req ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	inst, err := h.service.CompleteDefined(r.Context(), id, actorFrom(claims), req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) completeOpenSlot(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeCareRecord, auth.ScopeSchedulesWrite)
	if !ok {
		return
	}

	var req CompleteOpenSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	inst, err := h.service.CompleteOpenSlot(r.Context(), id, req.Chosen, actorFrom(claims), req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) updateExecution(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeCareRecord, auth.ScopeSchedulesWrite); !ok {
		return
	}

	var req UpdateExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	inst, err := h.service.UpdateCompleted(r.Context(), id, req.Chosen, req.toInput())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) clearInstance(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeCareRecord, auth.ScopeSchedulesWrite); !ok {
		return
	}

	inst, err := h.service.ClearCompleted(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) omitInstance(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeCareRecord, auth.ScopeSchedulesWrite)
	if !ok {
		return
	}

	var req OmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	inst, err := h.service.Omit(r.Context(), id, req.Reason, actorFrom(claims))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) cancelInstance(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireScope(w, r, auth.ScopeSchedulesWrite); !ok {
		return
	}

	inst, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceView(*inst))
}

func (h *Handler) dayStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeSchedulesRead, auth.ScopeSchedulesWrite, auth.ScopeCareRecord); !ok {
		return
	}

	query := r.URL.Query()
	now := time.Now().UTC()
	if raw := query.Get("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "now must be RFC3339")
			return
		}
		now = parsed
	}

	date := domain.NormalizeDate(now)
	if raw := query.Get("date"); raw != "" {
		parsed, err := time.Parse(domain.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	events := make([]domain.ScheduledEvent, 0, 16)
	var cursor *domain.Cursor
	for {
		instances, next, err := h.service.ListInstances(r.Context(), date, date, cursor, 100)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		for _, inst := range instances {
			// Omitted and cancelled instances no longer belong on the timeline.
			if inst.State == domain.StateOmitted || inst.State == domain.StateCancelled {
				continue
			}
			events = append(events, domain.InstanceEvent{Instance: inst})
		}
		if next == nil {
			break
		}
		cursor = next
	}

	writeJSON(w, http.StatusOK, DayStatusResponse{
		Date:  date.Format(domain.DateLayout),
		Now:   now,
		Items: domain.ComputeDayStatus(now, events, h.windows),
	})
}

func actorFrom(claims *auth.Claims) domain.Actor {
	return domain.Actor{ID: claims.Subject, Name: claims.Name}
}

// requireScope enforces auth and returns the claims when any listed scope is
// held. It writes the failure response itself when the check does not pass.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "not_found", "template not found")
	case errors.Is(err, domain.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "not_found", "instance not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"error":  code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
