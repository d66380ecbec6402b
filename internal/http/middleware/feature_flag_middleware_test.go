package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/interceptor"
	"github.com/AstroMined/debtonator/internal/service"
)

type staticLister struct{ names []string }

func (l staticLister) Names() []string { return append([]string(nil), l.names...) }

type stubEvaluator struct{ enabled map[string]bool }

func (e *stubEvaluator) IsEnabled(_ context.Context, name string, _ *domain.EvaluationContext) bool {
	return e.enabled[name]
}

func newGuardForTest(enabled bool) *interceptor.Guard {
	reqs := map[string]domain.Requirements{
		"ewa_api": {
			domain.LayerAPI: {
				"/api/v1/accounts/ewa": {Kind: domain.DecisionList, AccountSet: map[string]struct{}{"ewa": {}}},
			},
		},
	}
	return interceptor.NewGuard(
		service.NewStaticRequirementProvider(reqs),
		staticLister{names: []string{"ewa_api"}},
		&stubEvaluator{enabled: map[string]bool{"ewa_api": enabled}},
		nil,
		time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func okNoContentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestFeatureFlagMiddlewareForwardsUngovernedPath(t *testing.T) {
	h := FeatureFlag(newGuardForTest(false))(okNoContentHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bills", nil)
	req.Header.Set("X-Account-Type", "ewa")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("ungoverned path must forward, got %d", rr.Code)
	}
}

func TestFeatureFlagMiddlewareRejectsDisabledFeature(t *testing.T) {
	h := FeatureFlag(newGuardForTest(false))(okNoContentHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/ewa", nil)
	req.Header.Set("X-Account-Type", "ewa")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled feature, got %d", rr.Code)
	}
}

func TestFeatureFlagMiddlewareAllowsEnabledFeature(t *testing.T) {
	h := FeatureFlag(newGuardForTest(true))(okNoContentHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/ewa", nil)
	req.Header.Set("X-Account-Type", "ewa")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through for enabled feature, got %d", rr.Code)
	}
}

func TestFeatureFlagMiddlewareUncontrolledAccountType(t *testing.T) {
	h := FeatureFlag(newGuardForTest(false))(okNoContentHandler())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/ewa", nil)
	req.Header.Set("X-Account-Type", "checking")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unlisted account type must forward, got %d", rr.Code)
	}
}
