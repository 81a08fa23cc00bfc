package jsonfile

import (
	"fmt"
	"strings"

	"github.com/emiliopalmerini/amadeus/internal/domain"
	"github.com/emiliopalmerini/amadeus/internal/util"
)

// Lookup resolves a dotted path inside doc.
func Lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			if d, isDoc := cur.(domain.Document); isDoc {
				m = d
			} else {
				return nil, false
			}
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Matches reports whether doc satisfies every equality in filter.
// A nil filter value matches a missing field or JSON null.
func Matches(doc domain.Document, filter domain.Filter) bool {
	for path, want := range filter {
		got, ok := Lookup(doc, path)
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(got, want any) bool {
	if util.IsNumber(got) && util.IsNumber(want) {
		return util.ToFloat64(got) == util.ToFloat64(want)
	}
	return got == want
}

// Compare orders two JSON values: nil first, then numbers, strings, bools.
func Compare(a, b any) int {
	rank := func(v any) int {
		switch {
		case v == nil:
			return 0
		case util.IsNumber(v):
			return 1
		}
		switch v.(type) {
		case string:
			return 2
		case bool:
			return 3
		}
		return 4
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		fa, fb := util.ToFloat64(a), util.ToFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 3:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	case 4:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

// MergePatch applies an RFC 7396 JSON merge patch to target and returns
// the result. Null values in patch delete keys.
func MergePatch(target, patch map[string]any) map[string]any {
	out := make(map[string]any, len(target))
	for k, v := range target {
		out[k] = v
	}
	for k, pv := range patch {
		if pv == nil {
			delete(out, k)
			continue
		}
		pm, isMap := pv.(map[string]any)
		if !isMap {
			out[k] = pv
			continue
		}
		tm, _ := out[k].(map[string]any)
		out[k] = MergePatch(tm, pm)
	}
	return out
}
