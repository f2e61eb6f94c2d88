package authz

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// absent is the sentinel for an attribute path that did not resolve. It
// fails every operator except not_equals and not_in, which treat absence as
// satisfying "not this value".
type absentSentinel struct{}

var absent = absentSentinel{}

// resolvePath walks a dot-separated path through nested maps, returning the
// absent sentinel instead of panicking on missing or non-map segments.
func resolvePath(ctx map[string]any, path string) any {
	if path == "" {
		return absent
	}
	var current any = ctx
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return absent
		}
		current, ok = m[segment]
		if !ok {
			return absent
		}
	}
	return current
}

// evalCondition evaluates one condition against the merged context.
func evalCondition(cond Condition, ctx map[string]any) bool {
	resolved := resolvePath(ctx, cond.Attribute)
	if _, missing := resolved.(absentSentinel); missing {
		return cond.Operator == OpNotEquals || cond.Operator == OpNotIn
	}

	switch cond.Operator {
	case OpEquals:
		return looseEqual(resolved, cond.Value)
	case OpNotEquals:
		return !looseEqual(resolved, cond.Value)
	case OpIn:
		return memberOf(cond.Value, resolved)
	case OpNotIn:
		return !memberOf(cond.Value, resolved)
	case OpGreaterThan:
		a, aok := toFloat(resolved)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(resolved)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	case OpContains:
		return containsValue(resolved, cond.Value)
	case OpRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(resolved))
	default:
		return false
	}
}

// looseEqual compares with numeric coercion, so a JSON-decoded float64 still
// equals an int the policy author wrote.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return stringify(a) == stringify(b)
}

// memberOf reports whether candidate equals any element of set.
func memberOf(set, candidate any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if looseEqual(item, candidate) {
				return true
			}
		}
	case []string:
		for _, item := range s {
			if looseEqual(item, candidate) {
				return true
			}
		}
	}
	return false
}

// containsValue covers both string containment and slice membership.
func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, stringify(needle))
	case []any:
		return memberOf(h, needle)
	case []string:
		return memberOf(h, needle)
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
