// Package registry holds the in-memory feature-flag store that backs
// all flag evaluation. A FlagRegistry is constructed once at the
// composition root and passed by handle to every consumer; there is no
// package-level instance.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/AstroMined/debtonator/internal/domain"
)

var (
	ErrDuplicateFlag = errors.New("feature flag already registered")
	ErrUnknownFlag   = errors.New("feature flag not registered")
)

// Observer is notified after a flag value actually changes. A failing
// observer never blocks other observers or the triggering write.
type Observer interface {
	OnFlagChanged(name string, oldValue, newValue any)
}

// Flag is the in-memory descriptor for one registered flag. Version is
// bumped on every value write so readers can detect a stale entry
// while the persisted store and the registry converge.
type Flag struct {
	Name         string
	Type         domain.FlagType
	Value        any
	Description  string
	Metadata     map[string]any
	IsSystem     bool
	Version      uint64
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// RegisterInput carries the fields accepted by Register.
type RegisterInput struct {
	Name        string
	Type        domain.FlagType
	Value       any
	Description string
	Metadata    map[string]any
	IsSystem    bool
}

// FlagRegistry is the in-memory flag store. One plain mutex guards the
// flag map and the observer list; no internal call path re-acquires
// the lock, and observers are notified outside it so they may re-enter
// read operations.
type FlagRegistry struct {
	mu        sync.Mutex
	flags     map[string]*Flag
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

func New(logger *slog.Logger) *FlagRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlagRegistry{
		flags:  make(map[string]*Flag),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register inserts a new flag. Registering a name twice fails with
// ErrDuplicateFlag and leaves the first registration untouched.
func (r *FlagRegistry) Register(in RegisterInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flags[in.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFlag, in.Name)
	}
	now := r.now()
	r.flags[in.Name] = &Flag{
		Name:         in.Name,
		Type:         in.Type,
		Value:        in.Value,
		Description:  in.Description,
		Metadata:     in.Metadata,
		IsSystem:     in.IsSystem,
		Version:      1,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	return nil
}

// Get returns a copy of the named flag's descriptor.
func (r *FlagRegistry) Get(name string) (Flag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[name]
	if !ok {
		return Flag{}, false
	}
	return *flag, true
}

// Value evaluates the named flag against evalCtx. The evaluation
// strategy depends on the flag type; see evaluate.go.
func (r *FlagRegistry) Value(name string, evalCtx *domain.EvaluationContext) (any, error) {
	r.mu.Lock()
	flag, ok := r.flags[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	flagType, value := flag.Type, flag.Value
	r.mu.Unlock()
	return evaluate(flagType, value, name, evalCtx, r.now()), nil
}

// SetValue updates the named flag's raw value. Observers fire only
// when the value actually changed, after the lock is released.
func (r *FlagRegistry) SetValue(name string, value any) error {
	r.mu.Lock()
	flag, ok := r.flags[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	oldValue := flag.Value
	if reflect.DeepEqual(oldValue, value) {
		r.mu.Unlock()
		return nil
	}
	flag.Value = value
	flag.Version++
	flag.UpdatedAt = r.now()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, o := range observers {
		r.notify(o, name, oldValue, value)
	}
	return nil
}

func (r *FlagRegistry) notify(o Observer, name string, oldValue, newValue any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("flag observer failed",
				"flag", name,
				"old_value", oldValue,
				"new_value", newValue,
				"observer", fmt.Sprintf("%T", o),
				"panic", rec,
			)
		}
	}()
	o.OnFlagChanged(name, oldValue, newValue)
}

// Flags returns a snapshot of every registered flag.
func (r *FlagRegistry) Flags() map[string]Flag {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Flag, len(r.flags))
	for name, flag := range r.flags {
		out[name] = *flag
	}
	return out
}

// Names returns the names of every registered flag.
func (r *FlagRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.flags))
	for name := range r.flags {
		out = append(out, name)
	}
	return out
}

func (r *FlagRegistry) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *FlagRegistry) RemoveObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Reset clears all flags and observers. Intended for test isolation.
func (r *FlagRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = make(map[string]*Flag)
	r.observers = nil
}
