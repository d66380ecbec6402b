package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// InvalidValueError reports a flag value whose shape does not match the
// flag's declared type. It is returned before any write takes place.
type InvalidValueError struct {
	Name     string
	FlagType FlagType
	Reason   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for flag %q (type %s): %s", e.Name, e.FlagType, e.Reason)
}

// TimeWindow is the decoded value of a time_based flag. Either bound
// may be absent, which leaves that side of the window open.
type TimeWindow struct {
	Start *time.Time
	End   *time.Time
}

// ValidateValue checks that value matches the shape expected for the
// flag type. Unknown flag types accept any value.
func ValidateValue(name string, flagType FlagType, value any) error {
	fail := func(reason string) error {
		return &InvalidValueError{Name: name, FlagType: flagType, Reason: reason}
	}
	switch flagType {
	case FlagTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fail(fmt.Sprintf("expected bool, got %T", value))
		}
	case FlagTypePercentage:
		pct, ok := AsPercentage(value)
		if !ok {
			return fail(fmt.Sprintf("expected number, got %T", value))
		}
		if pct < 0 || pct > 100 {
			return fail(fmt.Sprintf("percentage %v outside [0,100]", pct))
		}
	case FlagTypeUserSegment:
		if _, ok := AsSegments(value); !ok {
			return fail(fmt.Sprintf("expected list of segment names, got %T", value))
		}
	case FlagTypeTimeBased:
		window, ok := AsTimeWindow(value)
		if !ok {
			return fail(fmt.Sprintf("expected time window, got %T", value))
		}
		if window.Start != nil && window.End != nil && window.Start.After(*window.End) {
			return fail("window start is after end")
		}
	}
	return nil
}

// AsPercentage coerces a numeric flag value. JSON decoding yields
// float64; typed callers may hand in ints.
func AsPercentage(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsSegments coerces a user_segment flag value into a segment name
// list. JSON decoding yields []any.
func AsSegments(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// AsTimeWindow coerces a time_based flag value. Accepted forms are a
// TimeWindow, or a map with optional "start"/"end" entries holding
// RFC 3339 strings (explicit offset or Z) or time.Time values. Bounds
// are normalized to UTC.
func AsTimeWindow(value any) (TimeWindow, bool) {
	switch v := value.(type) {
	case TimeWindow:
		return normalizeWindow(v), true
	case *TimeWindow:
		if v == nil {
			return TimeWindow{}, true
		}
		return normalizeWindow(*v), true
	case map[string]any:
		var window TimeWindow
		for key, target := range map[string]**time.Time{"start": &window.Start, "end": &window.End} {
			raw, ok := v[key]
			if !ok || raw == nil {
				continue
			}
			ts, ok := asInstant(raw)
			if !ok {
				return TimeWindow{}, false
			}
			*target = &ts
		}
		return window, true
	case nil:
		return TimeWindow{}, true
	default:
		return TimeWindow{}, false
	}
}

func normalizeWindow(w TimeWindow) TimeWindow {
	var out TimeWindow
	if w.Start != nil {
		s := w.Start.UTC()
		out.Start = &s
	}
	if w.End != nil {
		e := w.End.UTC()
		out.End = &e
	}
	return out
}

func asInstant(raw any) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		return time.Time{}, false
	}
}
