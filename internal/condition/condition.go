// Package condition evaluates the boolean predicate DSL over a system
// profile (component C, spec §4.2): a tagged-expression evaluator in place
// of the duck-typed dictionary walk the source relies on (§9 design notes).
package condition

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"github.com/outfit-dev/outfit/internal/sysprofile"
)

// Op is one of the comparison operators a leaf predicate may use.
type Op string

const (
	OpEq           Op = "eq"
	OpNe           Op = "ne"
	OpGt           Op = "gt"
	OpGte          Op = "gte"
	OpLt           Op = "lt"
	OpLte          Op = "lte"
	OpIn           Op = "in"
	OpRegex        Op = "regex"
	OpSemverGte    Op = "semver_gte"
	OpSemverInRange Op = "semver_in_range"
)

// Predicate is the raw condition document, decoded from TOML/JSON into the
// same map[string]interface{} shape recipe.ChoiceOption.Requires carries.
// At the top level and within "and"/"or", keys are either the reserved
// operators "and"/"or"/"not" or dotted profile paths; a value under a path
// key is either a literal (compared with eq) or a single-key {op: value} map.
type Predicate map[string]interface{}

// Evaluate returns whether pred holds against profile, plus a human-readable
// reason for the first failing clause (used to populate disabled_reason).
// Unknown profile paths always evaluate to false, never raise (§4.2).
func Evaluate(pred Predicate, profile *sysprofile.Profile) (bool, string) {
	if len(pred) == 0 {
		return true, ""
	}

	keys := make([]string, 0, len(pred))
	for k := range pred {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		val := pred[key]
		ok, reason := evalEntry(key, val, profile)
		if !ok {
			return false, reason
		}
	}
	return true, ""
}

func evalEntry(key string, val interface{}, profile *sysprofile.Profile) (bool, string) {
	switch key {
	case "and":
		return evalAnd(val, profile)
	case "or":
		return evalOr(val, profile)
	case "not":
		return evalNot(val, profile)
	default:
		return evalLeaf(key, val, profile)
	}
}

func evalAnd(val interface{}, profile *sysprofile.Profile) (bool, string) {
	list, ok := asPredicateList(val)
	if !ok {
		return false, "malformed and clause"
	}
	for _, sub := range list {
		ok, reason := Evaluate(sub, profile)
		if !ok {
			return false, reason
		}
	}
	return true, ""
}

func evalOr(val interface{}, profile *sysprofile.Profile) (bool, string) {
	list, ok := asPredicateList(val)
	if !ok {
		return false, "malformed or clause"
	}
	var lastReason string
	for _, sub := range list {
		ok, reason := Evaluate(sub, profile)
		if ok {
			return true, ""
		}
		lastReason = reason
	}
	if lastReason == "" {
		lastReason = "no branch of or clause matched"
	}
	return false, lastReason
}

func evalNot(val interface{}, profile *sysprofile.Profile) (bool, string) {
	sub, ok := asPredicate(val)
	if !ok {
		return false, "malformed not clause"
	}
	ok, _ = Evaluate(sub, profile)
	if ok {
		return false, "negated condition was satisfied"
	}
	return true, ""
}

func evalLeaf(path string, val interface{}, profile *sysprofile.Profile) (bool, string) {
	actual, found := profile.Get(path)
	if !found {
		return false, fmt.Sprintf("%s is unknown on this host", path)
	}
	// Named string types (sysprofile.Family, Arch, ...) compare as plain strings.
	if rv := reflect.ValueOf(actual); rv.Kind() == reflect.String {
		actual = rv.String()
	}

	opMap, isOpForm := val.(map[string]interface{})
	if !isOpForm {
		if actual == val {
			return true, ""
		}
		return false, fmt.Sprintf("%s is %v, expected %v", path, actual, val)
	}
	if len(opMap) != 1 {
		return false, fmt.Sprintf("malformed operator clause for %s", path)
	}
	for opName, opVal := range opMap {
		ok := applyOp(Op(opName), actual, opVal)
		if ok {
			return true, ""
		}
		return false, fmt.Sprintf("%s (%v) does not satisfy %s %v", path, actual, opName, opVal)
	}
	return false, "unreachable"
}

func applyOp(op Op, actual, expected interface{}) bool {
	switch op {
	case OpEq:
		return actual == expected
	case OpNe:
		return actual != expected
	case OpGt:
		return compareNumeric(actual, expected) > 0
	case OpGte:
		return compareNumeric(actual, expected) >= 0
	case OpLt:
		return compareNumeric(actual, expected) < 0
	case OpLte:
		return compareNumeric(actual, expected) <= 0
	case OpIn:
		return inList(actual, expected)
	case OpRegex:
		return matchRegex(actual, expected)
	case OpSemverGte:
		return sysprofile.CompareVersions(toStr(actual), toStr(expected)) >= 0
	case OpSemverInRange:
		return semverInRange(toStr(actual), expected)
	default:
		return false
	}
}

func asPredicateList(val interface{}) ([]Predicate, bool) {
	raw, ok := val.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]Predicate, 0, len(raw))
	for _, item := range raw {
		p, ok := asPredicate(item)
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

func asPredicate(val interface{}) (Predicate, bool) {
	switch m := val.(type) {
	case Predicate:
		return m, true
	case map[string]interface{}:
		return Predicate(m), true
	default:
		return nil, false
	}
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func compareNumeric(a, b interface{}) int {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return 0
	}
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func inList(actual, list interface{}) bool {
	items, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if item == actual {
			return true
		}
	}
	return false
}

func matchRegex(actual, pattern interface{}) bool {
	s, ok := actual.(string)
	if !ok {
		return false
	}
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func semverInRange(actual string, rangeVal interface{}) bool {
	r, ok := rangeVal.(map[string]interface{})
	if !ok {
		return false
	}
	if min, ok := r["min"]; ok && sysprofile.CompareVersions(actual, toStr(min)) < 0 {
		return false
	}
	if max, ok := r["max"]; ok && sysprofile.CompareVersions(actual, toStr(max)) > 0 {
		return false
	}
	return true
}
