package vectorstore

import "fmt"

// Matches reports whether metadata satisfies w. Unknown fields in metadata
// are ignored; fields named by w but absent from metadata never match
// except under $ne, which treats a missing field as satisfying the clause.
func (w Where) Matches(metadata map[string]any) bool {
	for key, val := range w {
		switch key {
		case "$and":
			clauses, ok := val.([]Where)
			if !ok {
				return false
			}
			for _, c := range clauses {
				if !c.Matches(metadata) {
					return false
				}
			}
		case "$or":
			clauses, ok := val.([]Where)
			if !ok {
				return false
			}
			any := false
			for _, c := range clauses {
				if c.Matches(metadata) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		default:
			if !matchesField(metadata[key], val) {
				return false
			}
		}
	}
	return true
}

// matchesField evaluates one field's clause, which is either a scalar
// (equality) or a nested Where carrying exactly one comparison operator.
func matchesField(actual any, clause any) bool {
	nested, ok := clause.(Where)
	if !ok {
		return equal(actual, clause)
	}
	for op, want := range nested {
		if actual == nil && op != "$ne" {
			return false
		}
		switch op {
		case "$ne":
			if equal(actual, want) {
				return false
			}
		case "$in":
			if !containsAny(want, actual) {
				return false
			}
		case "$nin":
			if containsAny(want, actual) {
				return false
			}
		case "$gt":
			if compare(actual, want) <= 0 {
				return false
			}
		case "$gte":
			if compare(actual, want) < 0 {
				return false
			}
		case "$lt":
			if compare(actual, want) >= 0 {
				return false
			}
		case "$lte":
			if compare(actual, want) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b) && sameKind(a, b)
}

func sameKind(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b) || (a == nil && b == nil)
}

func containsAny(set any, v any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, it := range items {
		if equal(v, it) {
			return true
		}
	}
	return false
}

// compare returns -1, 0, 1 for a<b, a==b, a>b. Numeric values compare
// numerically; everything else falls back to string comparison.
func compare(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
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
