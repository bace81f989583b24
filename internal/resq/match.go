package resq

import "log"

// Field selects which part of a node a filter inspects.
type Field string

const (
	FieldProps Field = "props"
	FieldState Field = "state"
)

// MatchArray compares two lists. Exact matching needs equal lengths and every
// matcher item present in candidate; otherwise one shared item is enough.
// Anything that is not a list never matches.
func MatchArray(matcher, candidate Value, exact bool) bool {
	m, ok := matcher.(*List)
	if !ok || m == nil {
		return false
	}
	c, ok := candidate.(*List)
	if !ok || c == nil {
		return false
	}
	if exact {
		if len(m.Items) != len(c.Items) {
			return false
		}
		for _, item := range m.Items {
			if !includes(c, item) {
				return false
			}
		}
		return true
	}
	for _, item := range m.Items {
		if includes(c, item) {
			return true
		}
	}
	return false
}

func includes(l *List, v Value) bool {
	for _, item := range l.Items {
		if sameValueZero(item, v) {
			return true
		}
	}
	return false
}

// MatchObject reports whether candidate satisfies matcher. An empty matcher
// matches anything. Exact matching is deep equality. Otherwise every key the
// two share must match, nested maps matching partially, and at least one key
// must be shared. A candidate object seen twice in one comparison fails.
func MatchObject(matcher, candidate *Map, exact bool) bool {
	return matchObject(matcher, candidate, exact, map[*Map]struct{}{})
}

func matchObject(matcher, candidate *Map, exact bool, visited map[*Map]struct{}) bool {
	if candidate != nil {
		if _, ok := visited[candidate]; ok {
			return false
		}
		visited[candidate] = struct{}{}
	}
	if matcher.Len() == 0 {
		return true
	}
	if candidate.Len() == 0 {
		return false
	}
	if exact {
		return deepEqual(matcher, candidate, map[valuePair]struct{}{})
	}

	shared, matched := 0, 0
	for _, key := range matcher.keys {
		cv, ok := candidate.fields[key]
		if !ok {
			continue
		}
		shared++
		mv := matcher.fields[key]

		ok = false
		if mm, isMap := mv.(*Map); isMap {
			if cm, isMap := cv.(*Map); isMap {
				ok = matchObject(mm, cm, false, visited)
			}
		} else {
			ok = strictEqual(mv, cv) || MatchArray(mv, cv, false)
		}
		if ok && cv.Kind() != KindUndefined {
			matched++
		}
	}
	return matched > 0 && matched == shared
}

// FilterBy keeps the nodes whose field matches matcher. The matcher is
// converted with ValueOf: maps compare with MatchObject, lists with
// MatchArray, anything else by strict equality. A function matcher is not
// comparable and yields an empty result.
func FilterBy(nodes []*Node, field Field, matcher any, exact bool) []*Node {
	m := ValueOf(matcher)
	if fn, ok := m.(*Func); ok {
		log.Printf("[resq] cannot filter %s by function %q: functions are not supported as matchers", field, fn.Name)
		return []*Node{}
	}

	out := make([]*Node, 0, len(nodes))
	mm, isMap := m.(*Map)
	if isMap && mm.Len() == 0 && !exact {
		return append(out, nodes...)
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if matchValue(m, fieldOf(n, field), exact) {
			out = append(out, n)
		}
	}
	return out
}

func fieldOf(n *Node, field Field) Value {
	var v Value
	if field == FieldState {
		v = n.State
	} else {
		v = n.Props
	}
	if v == nil {
		return Undefined
	}
	return v
}

func matchValue(matcher, candidate Value, exact bool) bool {
	if mm, ok := matcher.(*Map); ok {
		if cm, ok := candidate.(*Map); ok {
			return MatchObject(mm, cm, exact)
		}
	}
	if _, ok := matcher.(*List); ok {
		if _, ok := candidate.(*List); ok {
			return MatchArray(matcher, candidate, exact)
		}
	}
	return strictEqual(matcher, candidate)
}
