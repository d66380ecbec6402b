package interceptor

import (
	"errors"
	"fmt"

	"github.com/AstroMined/debtonator/internal/domain"
)

// ErrFeatureDisabled is the sentinel behind every guard denial, so
// callers can branch on "feature unavailable" without inspecting the
// concrete error.
var ErrFeatureDisabled = errors.New("feature disabled")

// ErrUnknownMethod reports a proxy call against a method that was
// never registered on the proxy.
var ErrUnknownMethod = errors.New("method not registered on proxy")

// FeatureDisabledError carries the full denial context. It is distinct
// from any error type the wrapped target produces.
type FeatureDisabledError struct {
	Flag        string
	Layer       domain.Layer
	Method      string
	AccountType string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("feature %q disabled for %s/%s (account type %q)", e.Flag, e.Layer, e.Method, e.AccountType)
}

func (e *FeatureDisabledError) Unwrap() error { return ErrFeatureDisabled }
