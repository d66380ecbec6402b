package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/repository"
	"github.com/AstroMined/debtonator/internal/service"
)

type stubFlagService struct {
	initialize          func(ctx context.Context) error
	isEnabled           func(ctx context.Context, name string, evalCtx *domain.EvaluationContext) bool
	setEnabled          func(ctx context.Context, name string, enabled bool, persist bool) bool
	setValue            func(ctx context.Context, name string, value any, persist bool) bool
	createFlag          func(ctx context.Context, in service.CreateFlagInput) (*domain.FeatureFlag, error)
	updateFlag          func(ctx context.Context, name string, in service.UpdateFlagInput) (*domain.FeatureFlag, error)
	deleteFlag          func(ctx context.Context, name string) (bool, error)
	getAllFlags         func(ctx context.Context) ([]domain.FeatureFlag, error)
	getFlag             func(ctx context.Context, name string) (*domain.FeatureFlag, error)
	bulkUpdateFlags     func(ctx context.Context, updates []service.UpdateFlagInput) ([]domain.FeatureFlag, error)
	getRequirements     func(ctx context.Context, name string) (domain.Requirements, error)
	updateRequirements  func(ctx context.Context, name string, requirements map[string]any) error
	defaultRequirements func() map[string]domain.Requirements
}

func (s *stubFlagService) Initialize(ctx context.Context) error {
	return s.initialize(ctx)
}

func (s *stubFlagService) IsEnabled(ctx context.Context, name string, evalCtx *domain.EvaluationContext) bool {
	return s.isEnabled(ctx, name, evalCtx)
}

func (s *stubFlagService) SetEnabled(ctx context.Context, name string, enabled bool, persist bool) bool {
	return s.setEnabled(ctx, name, enabled, persist)
}

func (s *stubFlagService) SetValue(ctx context.Context, name string, value any, persist bool) bool {
	return s.setValue(ctx, name, value, persist)
}

func (s *stubFlagService) CreateFlag(ctx context.Context, in service.CreateFlagInput) (*domain.FeatureFlag, error) {
	return s.createFlag(ctx, in)
}

func (s *stubFlagService) UpdateFlag(ctx context.Context, name string, in service.UpdateFlagInput) (*domain.FeatureFlag, error) {
	return s.updateFlag(ctx, name, in)
}

func (s *stubFlagService) DeleteFlag(ctx context.Context, name string) (bool, error) {
	return s.deleteFlag(ctx, name)
}

func (s *stubFlagService) GetAllFlags(ctx context.Context) ([]domain.FeatureFlag, error) {
	return s.getAllFlags(ctx)
}

func (s *stubFlagService) GetFlag(ctx context.Context, name string) (*domain.FeatureFlag, error) {
	return s.getFlag(ctx, name)
}

func (s *stubFlagService) BulkUpdateFlags(ctx context.Context, updates []service.UpdateFlagInput) ([]domain.FeatureFlag, error) {
	return s.bulkUpdateFlags(ctx, updates)
}

func (s *stubFlagService) GetRequirements(ctx context.Context, name string) (domain.Requirements, error) {
	return s.getRequirements(ctx, name)
}

func (s *stubFlagService) UpdateRequirements(ctx context.Context, name string, requirements map[string]any) error {
	return s.updateRequirements(ctx, name, requirements)
}

func (s *stubFlagService) DefaultRequirements() map[string]domain.Requirements {
	return s.defaultRequirements()
}

func newFlagRouterForTest(svc service.FeatureFlagService) chi.Router {
	h := NewFeatureFlagHandler(svc)
	r := chi.NewRouter()
	r.Get("/feature-flags", h.ListFlags)
	r.Put("/feature-flags", h.BulkUpdateFlags)
	r.Get("/feature-flags/defaults/requirements", h.DefaultRequirements)
	r.Get("/feature-flags/{name}", h.GetFlag)
	r.Put("/feature-flags/{name}", h.UpdateFlag)
	r.Get("/feature-flags/{name}/requirements", h.GetRequirements)
	r.Put("/feature-flags/{name}/requirements", h.UpdateRequirements)
	return r
}

func TestListFlags(t *testing.T) {
	svc := &stubFlagService{
		getAllFlags: func(context.Context) ([]domain.FeatureFlag, error) {
			return []domain.FeatureFlag{{Name: "BETA_UI", FlagType: domain.FlagTypeBoolean}}, nil
		},
	}
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feature-flags", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Items []domain.FeatureFlag `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || len(body.Data.Items) != 1 || body.Data.Items[0].Name != "BETA_UI" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetFlagNotFound(t *testing.T) {
	svc := &stubFlagService{
		getFlag: func(_ context.Context, _ string) (*domain.FeatureFlag, error) {
			return nil, repository.ErrFeatureFlagNotFound
		},
	}
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feature-flags/MISSING", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetFlagRejectsBadName(t *testing.T) {
	svc := &stubFlagService{
		getFlag: func(_ context.Context, _ string) (*domain.FeatureFlag, error) {
			t.Fatal("service should not be called for an invalid name")
			return nil, nil
		},
	}
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feature-flags/bad%20name", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateFlagPassesPartialInput(t *testing.T) {
	var got service.UpdateFlagInput
	svc := &stubFlagService{
		updateFlag: func(_ context.Context, name string, in service.UpdateFlagInput) (*domain.FeatureFlag, error) {
			got = in
			return &domain.FeatureFlag{Name: name}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPut, "/feature-flags/BETA_UI",
		strings.NewReader(`{"value": true}`))
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !got.HasValue || got.Value != true {
		t.Fatalf("input = %+v, want value true present", got)
	}
	if got.Description != nil || got.Metadata != nil {
		t.Fatalf("absent fields must stay nil, got %+v", got)
	}
}

func TestUpdateFlagUnknown(t *testing.T) {
	svc := &stubFlagService{
		updateFlag: func(_ context.Context, _ string, _ service.UpdateFlagInput) (*domain.FeatureFlag, error) {
			return nil, service.ErrUnknownFlag
		},
	}
	req := httptest.NewRequest(http.MethodPut, "/feature-flags/NOPE", strings.NewReader(`{"value": 1}`))
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBulkUpdateFlags(t *testing.T) {
	var got []service.UpdateFlagInput
	svc := &stubFlagService{
		bulkUpdateFlags: func(_ context.Context, updates []service.UpdateFlagInput) ([]domain.FeatureFlag, error) {
			got = updates
			out := make([]domain.FeatureFlag, len(updates))
			for i, u := range updates {
				out[i] = domain.FeatureFlag{Name: u.Name}
			}
			return out, nil
		},
	}
	payload := `{"items": [{"name": "A_FLAG", "value": 25}, {"name": "B_FLAG", "description": "beta"}]}`
	req := httptest.NewRequest(http.MethodPut, "/feature-flags", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(got) != 2 {
		t.Fatalf("forwarded %d updates, want 2", len(got))
	}
	if got[0].Name != "A_FLAG" || !got[0].HasValue {
		t.Fatalf("first update = %+v", got[0])
	}
	if got[1].Name != "B_FLAG" || got[1].HasValue || got[1].Description == nil {
		t.Fatalf("second update = %+v", got[1])
	}
}

func TestBulkUpdateFlagsRejectsMissingName(t *testing.T) {
	svc := &stubFlagService{
		bulkUpdateFlags: func(_ context.Context, _ []service.UpdateFlagInput) ([]domain.FeatureFlag, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	req := httptest.NewRequest(http.MethodPut, "/feature-flags", strings.NewReader(`{"items": [{"value": 1}]}`))
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetRequirements(t *testing.T) {
	svc := &stubFlagService{
		getFlag: func(_ context.Context, name string) (*domain.FeatureFlag, error) {
			return &domain.FeatureFlag{
				Name:         name,
				Requirements: []byte(`{"repository": {"create_account": "*"}}`),
			}, nil
		},
	}
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/feature-flags/BANKING/requirements", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"create_account":"*"`) {
		t.Fatalf("requirements missing from body: %s", rec.Body.String())
	}
}

func TestUpdateRequirementsValidationError(t *testing.T) {
	svc := &stubFlagService{
		updateRequirements: func(_ context.Context, _ string, _ map[string]any) error {
			return &domain.InvalidValueError{Name: "BANKING", Reason: "unknown layer"}
		},
	}
	req := httptest.NewRequest(http.MethodPut, "/feature-flags/BANKING/requirements",
		strings.NewReader(`{"requirements": {"bogus": {}}}`))
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDefaultRequirements(t *testing.T) {
	svc := &stubFlagService{
		defaultRequirements: func() map[string]domain.Requirements {
			return service.DefaultRequirements()
		},
	}
	rec := httptest.NewRecorder()
	newFlagRouterForTest(svc).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/feature-flags/defaults/requirements", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "BANKING_ACCOUNT_TYPES_EWA_ENABLED") {
		t.Fatalf("defaults missing from body: %s", rec.Body.String())
	}
}
