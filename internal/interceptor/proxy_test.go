package interceptor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/service"
)

// accountStore is a stand-in for a wrapped repository object.
type accountStore struct {
	created []string
}

func (s *accountStore) createAccount(accountType string) (string, error) {
	s.created = append(s.created, accountType)
	return "acct-" + accountType, nil
}

func newProxyForTest(enabled map[string]bool, reqs map[string]domain.Requirements) (*Proxy, *accountStore) {
	names := make([]string, 0, len(reqs))
	for name := range reqs {
		names = append(names, name)
	}
	guard := NewGuard(
		service.NewStaticRequirementProvider(reqs),
		staticLister{names: names},
		&stubEvaluator{enabled: enabled},
		nil,
		time.Second,
		testLogger(),
	)
	store := &accountStore{}
	proxy := NewRepositoryProxy(guard, WithAccountTypeExtractor(func(args []any) string {
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				return s
			}
		}
		return ""
	}))
	proxy.Register("create_account", func(_ context.Context, args ...any) (any, error) {
		return store.createAccount(args[0].(string))
	})
	proxy.Register("failing_method", func(context.Context, ...any) (any, error) {
		return nil, errors.New("target blew up")
	})
	return proxy, store
}

func TestProxyForwardsUngovernedMethods(t *testing.T) {
	proxy, store := newProxyForTest(map[string]bool{"f": false}, map[string]domain.Requirements{
		"f": {domain.LayerRepository: {"other_method": {Kind: domain.DecisionAll}}},
	})

	result, err := proxy.Call(context.Background(), "create_account", nil, "checking")
	if err != nil {
		t.Fatalf("ungoverned method must forward, got %v", err)
	}
	if result != "acct-checking" || len(store.created) != 1 {
		t.Fatalf("expected target's true result, got %v (created %v)", result, store.created)
	}
}

func TestProxyEnforcesPerAccountRequirement(t *testing.T) {
	reqs := perAccountRequirements("ewa_flag", "create_account", map[string]bool{"ewa": true, "checking": false})
	proxy, store := newProxyForTest(map[string]bool{"ewa_flag": false}, reqs)
	ctx := context.Background()

	// checking is explicitly not controlled: forwards while the flag
	// is disabled.
	if _, err := proxy.Call(ctx, "create_account", nil, "checking"); err != nil {
		t.Fatalf("checking must forward, got %v", err)
	}

	_, err := proxy.Call(ctx, "create_account", nil, "ewa")
	var denied *FeatureDisabledError
	if !errors.As(err, &denied) {
		t.Fatalf("expected FeatureDisabledError for ewa, got %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("denied call must not reach the target, created %v", store.created)
	}
}

func TestProxyPassesTargetErrorsThrough(t *testing.T) {
	proxy, _ := newProxyForTest(map[string]bool{}, nil)

	_, err := proxy.Call(context.Background(), "failing_method", nil)
	if err == nil || err.Error() != "target blew up" {
		t.Fatalf("target error must propagate untouched, got %v", err)
	}
	if errors.Is(err, ErrFeatureDisabled) {
		t.Fatal("target error must not look like a denial")
	}
}

func TestProxyUnknownMethod(t *testing.T) {
	proxy, _ := newProxyForTest(map[string]bool{}, nil)
	if _, err := proxy.Call(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestProxyDefaultAccountType(t *testing.T) {
	reqs := perAccountRequirements("f", "m", map[string]bool{"bnpl": true})
	guard := NewGuard(
		service.NewStaticRequirementProvider(reqs),
		staticLister{names: []string{"f"}},
		&stubEvaluator{enabled: map[string]bool{"f": false}},
		nil,
		time.Second,
		testLogger(),
	)
	// The wrapped object carries its own account type.
	proxy := NewServiceProxy(guard, WithDefaultAccountType("bnpl"))
	called := false
	proxy.Register("m", func(context.Context, ...any) (any, error) {
		called = true
		return nil, nil
	})

	// Service layer has no requirement for "m" in this set; the proxy
	// is a service proxy, the requirement targets the repository
	// layer, so the call forwards.
	if _, err := proxy.Call(context.Background(), "m", nil); err != nil {
		t.Fatalf("service layer is ungoverned here, got %v", err)
	}
	if !called {
		t.Fatal("target should have been invoked")
	}
}

func TestServiceProxyLayerEnforcement(t *testing.T) {
	reqs := map[string]domain.Requirements{
		"f": {domain.LayerService: {"m": {Kind: domain.DecisionList, AccountSet: map[string]struct{}{"bnpl": {}}}}},
	}
	guard := NewGuard(
		service.NewStaticRequirementProvider(reqs),
		staticLister{names: []string{"f"}},
		&stubEvaluator{enabled: map[string]bool{"f": false}},
		nil,
		time.Second,
		testLogger(),
	)
	proxy := NewServiceProxy(guard, WithDefaultAccountType("bnpl"))
	proxy.Register("m", func(context.Context, ...any) (any, error) { return "ok", nil })

	if _, err := proxy.Call(context.Background(), "m", nil); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected denial on service layer, got %v", err)
	}
}
