package domain

import (
	"encoding/json"
	"fmt"
)

// Layer identifies which tier of the application a requirement entry
// gates: repository method, service method, or API endpoint.
type Layer string

const (
	LayerRepository Layer = "repository"
	LayerService    Layer = "service"
	LayerAPI        Layer = "api"
)

// DecisionKind discriminates the resolved form of a requirement entry.
type DecisionKind int

const (
	// DecisionAll gates every account type.
	DecisionAll DecisionKind = iota
	// DecisionList gates only the listed account types.
	DecisionList
	// DecisionPerAccount gates per account type; account types absent
	// from the map are not controlled.
	DecisionPerAccount
)

// Decision is the resolved form of one requirement entry for one
// method. The raw persisted shapes (wildcard string, array of account
// types, or object keyed by account type) are normalized into this
// tagged union once, when requirements are loaded, and never
// re-interpreted on the call path.
type Decision struct {
	Kind       DecisionKind
	AccountSet map[string]struct{}
	PerAccount map[string]bool
}

// Controlled reports whether the given account type is gated by this
// decision. An account type missing from a per-account map is treated
// as not controlled.
func (d Decision) Controlled(accountType string) bool {
	switch d.Kind {
	case DecisionAll:
		return true
	case DecisionList:
		_, ok := d.AccountSet[accountType]
		return ok
	case DecisionPerAccount:
		controlled, ok := d.PerAccount[accountType]
		if !ok {
			return false
		}
		return controlled
	default:
		return false
	}
}

// Requirements maps layer -> method-or-endpoint -> Decision for a
// single flag.
type Requirements map[Layer]map[string]Decision

// MethodDecision looks up the decision for one method within a layer.
func (r Requirements) MethodDecision(layer Layer, method string) (Decision, bool) {
	methods, ok := r[layer]
	if !ok {
		return Decision{}, false
	}
	d, ok := methods[method]
	return d, ok
}

// ParseRequirements normalizes a raw requirements document into the
// resolved Decision model. Accepted entry shapes per method:
//
//	"*"                      every account type is gated
//	["ewa", "bnpl"]          listed account types are gated
//	{"ewa": true, ...}       per-account gating; non-boolean values
//	                         (nested settings objects) count as gated
//
// A nil or empty document yields empty Requirements. Structure beyond
// these shapes is rejected; well-formedness is otherwise validated
// upstream.
func ParseRequirements(raw []byte) (Requirements, error) {
	if len(raw) == 0 {
		return Requirements{}, nil
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse requirements: %w", err)
	}
	out := make(Requirements, len(doc))
	for layer, methods := range doc {
		resolved := make(map[string]Decision, len(methods))
		for method, entry := range methods {
			d, err := parseDecision(entry)
			if err != nil {
				return nil, fmt.Errorf("requirement %s/%s: %w", layer, method, err)
			}
			resolved[method] = d
		}
		out[Layer(layer)] = resolved
	}
	return out, nil
}

func parseDecision(entry any) (Decision, error) {
	switch v := entry.(type) {
	case string:
		if v != "*" {
			return Decision{}, fmt.Errorf("unsupported requirement string %q", v)
		}
		return Decision{Kind: DecisionAll}, nil
	case []any:
		set := make(map[string]struct{}, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return Decision{}, fmt.Errorf("account type list holds non-string %T", item)
			}
			set[name] = struct{}{}
		}
		return Decision{Kind: DecisionList, AccountSet: set}, nil
	case map[string]any:
		per := make(map[string]bool, len(v))
		for accountType, val := range v {
			switch b := val.(type) {
			case bool:
				per[accountType] = b
			case nil:
				per[accountType] = false
			default:
				// Nested settings object: presence means the account
				// type is gated by the flag.
				per[accountType] = true
			}
		}
		return Decision{Kind: DecisionPerAccount, PerAccount: per}, nil
	default:
		return Decision{}, fmt.Errorf("unsupported requirement shape %T", entry)
	}
}
