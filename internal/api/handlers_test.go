package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/careplan/internal/auth"
	"example.com/careplan/internal/domain"
	"example.com/careplan/internal/persistence/memory"
)

// testNow is a Monday morning.
var testNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newTestMux(t *testing.T) (*http.ServeMux, *domain.Service) {
	t.Helper()
	repo := memory.NewRepository()
	service := domain.NewService(repo, domain.WithClock(func() time.Time { return testNow }))
	handler := NewHandler(service, domain.DefaultStatusWindows())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, service
}

func authedRequest(method, target, body string, scopes ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "carer-1",
		Name:      "Ana",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

const definedTemplateBody = `{
	"modality": "defined",
	"defined": {"name": "Morning walk", "duration_min": 30},
	"activity_type": "physical",
	"preferred_time": "09:30",
	"weekdays": [1, 4]
}`

func createTemplate(t *testing.T, mux *http.ServeMux, body string) TemplateView {
	t.Helper()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/templates", body, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var view TemplateView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return view
}

func TestCreateTemplate(t *testing.T) {
	mux, _ := newTestMux(t)

	view := createTemplate(t, mux, definedTemplateBody)
	if view.ID == "" {
		t.Fatal("expected template id")
	}
	if view.Shift != "morning" {
		t.Fatalf("expected morning shift got %s", view.Shift)
	}
	if !view.Active {
		t.Fatal("expected template to start active")
	}
	if view.CreatedBy != "carer-1" {
		t.Fatalf("expected created_by carer-1 got %s", view.CreatedBy)
	}
}

func TestCreateTemplateRequiresWriteScope(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/templates", definedTemplateBody, auth.ScopeSchedulesRead))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestCreateTemplateRejectsUnauthenticated(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/templates", strings.NewReader(definedTemplateBody))
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	mux, _ := newTestMux(t)

	body := `{
		"modality": "defined",
		"defined": {"name": "Walk", "duration_min": 30},
		"activity_type": "physical",
		"preferred_time": "25:00",
		"weekdays": [1]
	}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/templates", body, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateTemplateReportsInvalidation(t *testing.T) {
	mux, service := newTestMux(t)
	view := createTemplate(t, mux, definedTemplateBody)

	if _, err := service.Materialize(context.Background(), testNow); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	update := `{
		"modality": "defined",
		"defined": {"name": "Afternoon walk", "duration_min": 30},
		"activity_type": "physical",
		"preferred_time": "15:00",
		"weekdays": [1]
	}`
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPut, "/v1/templates/"+view.ID, update, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp TemplateMutationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Invalidated != 1 {
		t.Fatalf("expected 1 invalidated got %d", resp.Invalidated)
	}
	if resp.Template.Shift != "afternoon" {
		t.Fatalf("expected afternoon shift got %s", resp.Template.Shift)
	}
}

func TestGetTemplateNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet, "/v1/templates/no-such-id", "", auth.ScopeSchedulesRead))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestDeactivateTemplate(t *testing.T) {
	mux, _ := newTestMux(t)
	view := createTemplate(t, mux, definedTemplateBody)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/templates/"+view.ID+"/deactivate", "", auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet, "/v1/templates/"+view.ID, "", auth.ScopeSchedulesRead))
	var got TemplateView
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Active {
		t.Fatal("expected template to be inactive")
	}
}

func TestMaterializeEndpointAndInstanceLifecycle(t *testing.T) {
	mux, _ := newTestMux(t)
	view := createTemplate(t, mux, definedTemplateBody)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/schedule/materialize", `{"date":"2025-06-02"}`, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var mat MaterializeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &mat); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if mat.Created != 1 {
		t.Fatalf("expected 1 created got %d", mat.Created)
	}

	id := domain.InstanceID(view.ID, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/complete",
		`{"duration_min": 25, "mood": "content"}`, auth.ScopeCareRecord))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var inst InstanceView
	if err := json.Unmarshal(rr.Body.Bytes(), &inst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if inst.State != "completed" {
		t.Fatalf("expected completed got %s", inst.State)
	}
	if inst.Execution == nil || inst.Execution.ActorID != "carer-1" {
		t.Fatalf("expected execution attributed to carer-1, got %+v", inst.Execution)
	}

	// A second completion conflicts.
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/complete",
		`{"duration_min": 30}`, auth.ScopeCareRecord))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/clear", "", auth.ScopeCareRecord))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/omit",
		`{"reason": "resident unwell"}`, auth.ScopeCareRecord))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestOmitRejectsBlankReason(t *testing.T) {
	mux, _ := newTestMux(t)
	view := createTemplate(t, mux, definedTemplateBody)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/schedule/materialize", `{"date":"2025-06-02"}`, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	id := domain.InstanceID(view.ID, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/omit",
		`{"reason": "  "}`, auth.ScopeCareRecord))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListInstancesPagination(t *testing.T) {
	mux, _ := newTestMux(t)
	createTemplate(t, mux, definedTemplateBody)
	createTemplate(t, mux, `{
		"modality": "open_slot",
		"open_slot": {"duration_min": 45, "option_ids": ["opt-puzzle"]},
		"activity_type": "cognitive",
		"preferred_time": "15:00",
		"weekdays": [1]
	}`)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/schedule/materialize", `{"date":"2025-06-02"}`, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet,
		"/v1/instances?from=2025-06-02&to=2025-06-02&limit=1", "", auth.ScopeSchedulesRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var page ListInstancesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next cursor")
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet,
		"/v1/instances?from=2025-06-02&to=2025-06-02&limit=1&cursor="+page.NextCursor, "", auth.ScopeSchedulesRead))
	var second ListInstancesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(second.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(second.Items))
	}
	if second.Items[0].ID == page.Items[0].ID {
		t.Fatal("expected the second page to advance")
	}
	if second.NextCursor != "" {
		t.Fatalf("expected no further cursor, got %s", second.NextCursor)
	}
}

func TestListInstancesRejectsReversedRange(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet,
		"/v1/instances?from=2025-06-09&to=2025-06-02", "", auth.ScopeSchedulesRead))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDayStatus(t *testing.T) {
	mux, _ := newTestMux(t)
	createTemplate(t, mux, definedTemplateBody)
	view := createTemplate(t, mux, `{
		"modality": "open_slot",
		"open_slot": {"duration_min": 45, "option_ids": ["opt-puzzle"]},
		"activity_type": "cognitive",
		"preferred_time": "15:00",
		"weekdays": [1]
	}`)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/schedule/materialize", `{"date":"2025-06-02"}`, auth.ScopeSchedulesWrite))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	// Omit the open slot; it must drop off the timeline.
	id := domain.InstanceID(view.ID, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodPost, "/v1/instances/"+id+"/omit",
		`{"reason": "family visit"}`, auth.ScopeCareRecord))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet,
		"/v1/day-status?date=2025-06-02&now=2025-06-02T09:45:00Z", "", auth.ScopeSchedulesRead))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp DayStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Date != "2025-06-02" {
		t.Fatalf("unexpected date %s", resp.Date)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.Label != "Morning walk" {
		t.Fatalf("unexpected label %s", item.Label)
	}
	if item.Status != domain.StatusActive {
		t.Fatalf("expected active got %s", item.Status)
	}
	if item.Link != "/v1/instances/"+item.ID {
		t.Fatalf("unexpected link %s", item.Link)
	}
}

func TestDayStatusRejectsBadNow(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, authedRequest(http.MethodGet, "/v1/day-status?now=yesterday", "", auth.ScopeSchedulesRead))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	mux, _ := newTestMux(t)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}
