package interceptor

import (
	"context"
	"fmt"

	"github.com/AstroMined/debtonator/internal/domain"
)

// MethodFunc is one wrapped target method. Arguments arrive as the
// caller supplied them to Call.
type MethodFunc func(ctx context.Context, args ...any) (any, error)

// AccountTypeFunc extracts the account-type discriminator from a
// call's arguments. Returning "" falls back to the proxy's static
// account type.
type AccountTypeFunc func(args []any) string

// Proxy gates calls into a wrapped repository or service object.
// Methods are registered individually at composition time; the
// requirement model decides at call time which of them are governed
// by a flag. Calls to ungoverned methods forward unchanged, and a
// forwarded method's own error passes through as-is.
type Proxy struct {
	layer              domain.Layer
	guard              *Guard
	methods            map[string]MethodFunc
	accountTypeOf      AccountTypeFunc
	defaultAccountType string
}

type ProxyOption func(*Proxy)

// WithAccountTypeExtractor derives the account type from each call's
// arguments.
func WithAccountTypeExtractor(fn AccountTypeFunc) ProxyOption {
	return func(p *Proxy) { p.accountTypeOf = fn }
}

// WithDefaultAccountType sets the account type used when no extractor
// is configured or the extractor finds nothing; for targets that carry
// their own account type.
func WithDefaultAccountType(accountType string) ProxyOption {
	return func(p *Proxy) { p.defaultAccountType = accountType }
}

// NewRepositoryProxy builds a proxy enforcing repository-layer
// requirements.
func NewRepositoryProxy(guard *Guard, opts ...ProxyOption) *Proxy {
	return newProxy(domain.LayerRepository, guard, opts)
}

// NewServiceProxy builds a proxy enforcing service-layer requirements.
func NewServiceProxy(guard *Guard, opts ...ProxyOption) *Proxy {
	return newProxy(domain.LayerService, guard, opts)
}

func newProxy(layer domain.Layer, guard *Guard, opts []ProxyOption) *Proxy {
	p := &Proxy{
		layer:   layer,
		guard:   guard,
		methods: make(map[string]MethodFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds one target method under the name the requirement
// model refers to it by.
func (p *Proxy) Register(method string, fn MethodFunc) {
	p.methods[method] = fn
}

// Call invokes a registered method through the guard. Denials surface
// as *FeatureDisabledError; anything the target itself returns, result
// or error, passes through untouched.
func (p *Proxy) Call(ctx context.Context, method string, evalCtx *domain.EvaluationContext, args ...any) (any, error) {
	fn, ok := p.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownMethod, p.layer, method)
	}
	accountType := p.resolveAccountType(args)
	if err := p.guard.Allow(ctx, p.layer, method, accountType, evalCtx); err != nil {
		return nil, err
	}
	return fn(ctx, args...)
}

func (p *Proxy) resolveAccountType(args []any) string {
	if p.accountTypeOf != nil {
		if accountType := p.accountTypeOf(args); accountType != "" {
			return accountType
		}
	}
	return p.defaultAccountType
}
