package registry

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/AstroMined/debtonator/internal/domain"
)

// evaluate resolves a flag's effective value for one call. Unknown
// flag types return the stored value unchanged.
func evaluate(flagType domain.FlagType, value any, name string, evalCtx *domain.EvaluationContext, now time.Time) any {
	switch flagType {
	case domain.FlagTypeBoolean:
		return value
	case domain.FlagTypePercentage:
		return evaluatePercentage(value, name, evalCtx)
	case domain.FlagTypeUserSegment:
		return evaluateSegments(value, evalCtx)
	case domain.FlagTypeTimeBased:
		return evaluateWindow(value, now)
	default:
		return value
	}
}

// evaluatePercentage buckets a user deterministically: the same
// (user, flag) pair always lands in the same bucket, and raising the
// rollout percentage never drops a user that was already included.
// Calls without a user identity fail closed.
func evaluatePercentage(value any, name string, evalCtx *domain.EvaluationContext) bool {
	if evalCtx == nil || evalCtx.UserID == "" {
		return false
	}
	pct, ok := domain.AsPercentage(value)
	if !ok {
		return false
	}
	return PercentageBucket(evalCtx.UserID, name) < pct
}

// PercentageBucket maps a (user, flag) pair onto [0,100). xxhash is
// stable across processes, so rollout membership survives restarts.
func PercentageBucket(userID, flagName string) float64 {
	return float64(xxhash.Sum64String(userID+":"+flagName) % 100)
}

func evaluateSegments(value any, evalCtx *domain.EvaluationContext) bool {
	if evalCtx == nil {
		return false
	}
	segments, ok := domain.AsSegments(value)
	if !ok {
		return false
	}
	inSegment := make(map[string]struct{}, len(segments))
	for _, s := range segments {
		inSegment[s] = struct{}{}
	}
	if _, ok := inSegment["admin"]; ok && evalCtx.IsAdmin {
		return true
	}
	if _, ok := inSegment["beta"]; ok && evalCtx.IsBetaTester {
		return true
	}
	for _, group := range evalCtx.UserGroups {
		if _, ok := inSegment[group]; ok {
			return true
		}
	}
	return false
}

func evaluateWindow(value any, now time.Time) bool {
	window, ok := domain.AsTimeWindow(value)
	if !ok {
		return false
	}
	if window.Start != nil && now.Before(*window.Start) {
		return false
	}
	if window.End != nil && now.After(*window.End) {
		return false
	}
	return true
}
