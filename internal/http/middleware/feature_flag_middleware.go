package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/http/response"
	"github.com/AstroMined/debtonator/internal/interceptor"
)

// FeatureFlagOption tunes the enforcement middleware.
type FeatureFlagOption func(*featureFlagOptions)

type featureFlagOptions struct {
	bypass BypassEvaluator
}

// WithBypass exempts matching requests from enforcement entirely.
func WithBypass(bypass BypassEvaluator) FeatureFlagOption {
	return func(o *featureFlagOptions) { o.bypass = bypass }
}

// FeatureFlag enforces api-layer flag requirements: the request path is
// the method name in the requirement model, and the account type comes
// from the X-Account-Type header (validated upstream). Requests to
// ungoverned paths pass through untouched.
func FeatureFlag(guard *interceptor.Guard, opts ...FeatureFlagOption) func(http.Handler) http.Handler {
	var o featureFlagOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.bypass != nil {
				if ok, _ := o.bypass(r); ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			evalCtx := evaluationContextFromRequest(r)
			accountType := strings.TrimSpace(r.Header.Get("X-Account-Type"))
			err := guard.Allow(r.Context(), domain.LayerAPI, r.URL.Path, accountType, evalCtx)
			if err != nil {
				var denied *interceptor.FeatureDisabledError
				if errors.As(err, &denied) {
					response.Error(w, r, http.StatusForbidden, "FEATURE_DISABLED", denied.Error(), map[string]any{
						"flag":         denied.Flag,
						"account_type": denied.AccountType,
					})
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to resolve feature requirements", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func evaluationContextFromRequest(r *http.Request) *domain.EvaluationContext {
	evalCtx := &domain.EvaluationContext{
		UserID:       strings.TrimSpace(r.Header.Get("X-User-Id")),
		IsAdmin:      r.Header.Get("X-User-Admin") == "true",
		IsBetaTester: r.Header.Get("X-User-Beta") == "true",
		RequestPath:  r.URL.Path,
		ClientIP:     clientIP(r),
	}
	if groups := strings.TrimSpace(r.Header.Get("X-User-Groups")); groups != "" {
		for _, g := range strings.Split(groups, ",") {
			if trimmed := strings.TrimSpace(g); trimmed != "" {
				evalCtx.UserGroups = append(evalCtx.UserGroups, trimmed)
			}
		}
	}
	return evalCtx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
