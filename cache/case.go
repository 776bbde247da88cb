package cache

import (
	"reflect"
	"strings"
	"unicode"
)

// entityNameFor derives an entity namespace from the record type, e.g.
// *ShopRecord becomes "shop_record". Returns "" for unnamed types.
func entityNameFor[T any]() string {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return toSnake(rt.Name())
}

// toSnake converts s to snake_case. Any rune outside [A-Za-z0-9] becomes a
// single underscore so reflected names like "Page[main.Shop]" stay usable as
// key segments.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingSep := false
	sep := func() {
		if b.Len() > 0 {
			pendingSep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sep()
				}
			}
			r = unicode.ToLower(r)
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				sep()
			}
		case unicode.IsLower(r):
		default:
			sep()
			continue
		}

		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
