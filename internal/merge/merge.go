// Package merge implements the system-wide field-update policy: a candidate
// value is written only when the caller forces an overwrite or the target
// field is currently empty, and empty candidates are never written. Every
// enrichment writer and the spreadsheet importer go through Apply so the
// policy lives in exactly one place.
package merge

import (
	"reflect"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// tagName addresses struct fields by their persistence column.
const tagName = "merge"

// Apply writes candidate values onto target, a pointer to a struct whose
// mergeable fields carry a `merge:"column"` tag. It returns the sorted set of
// columns actually changed, which callers use to scope a minimal persistence
// write. Candidate keys with no matching tag are skipped.
func Apply(target any, candidates map[string]any, overwrite bool) ([]string, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, eris.New("merge: target must be a non-nil struct pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, eris.New("merge: target must point to a struct")
	}

	fields := tagIndex(v.Type())
	var changed []string

	for column, candidate := range candidates {
		idx, ok := fields[column]
		if !ok {
			zap.L().Debug("merge: unmapped column", zap.String("column", column))
			continue
		}
		if isEmptyCandidate(candidate) {
			continue
		}

		field := v.Field(idx)
		if !overwrite && !isEmptyField(field) {
			continue
		}

		if err := assign(field, candidate); err != nil {
			return nil, eris.Wrapf(err, "merge: column %s", column)
		}
		changed = append(changed, column)
	}

	sort.Strings(changed)
	return changed, nil
}

// Select returns the current values of the named merge-tagged columns on
// target, a struct pointer. Callers pair it with Apply's changed set to
// scope a minimal persistence write.
func Select(target any, columns []string) (map[string]any, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, eris.New("merge: target must be a non-nil struct pointer")
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, eris.New("merge: target must point to a struct")
	}

	fields := tagIndex(v.Type())
	out := make(map[string]any, len(columns))
	for _, column := range columns {
		idx, ok := fields[column]
		if !ok {
			return nil, eris.Errorf("merge: no field tagged %q on %s", column, v.Type())
		}
		out[column] = v.Field(idx).Interface()
	}
	return out, nil
}

func tagIndex(t reflect.Type) map[string]int {
	idx := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get(tagName); tag != "" && tag != "-" {
			idx[tag] = i
		}
	}
	return idx
}

// isEmptyField reports whether a target field counts as empty under the
// policy: nil pointer, empty string, empty slice or map. Non-pointer scalars
// at their zero value are deliberately not empty — a recorded zero is data.
func isEmptyField(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	case reflect.Slice, reflect.Map:
		return v.IsNil() || v.Len() == 0
	default:
		return false
	}
}

// isEmptyCandidate reports whether a candidate value would clobber a field
// with a blank. Such values are never written regardless of overwrite.
func isEmptyCandidate(c any) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil() || isEmptyCandidate(v.Elem().Interface())
	case reflect.String:
		return v.Len() == 0
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return false
	}
}

// assign converts candidate to the field's type. Numeric widening and
// JSON-decoded shapes ([]any for string slices, float64 for ints) are
// handled so LLM tool-call output can be merged without pre-conversion.
func assign(field reflect.Value, candidate any) error {
	cv := reflect.ValueOf(candidate)

	// Unwrap candidate pointers.
	for cv.Kind() == reflect.Pointer {
		cv = cv.Elem()
	}

	ft := field.Type()

	// Pointer targets receive a freshly allocated value.
	if ft.Kind() == reflect.Pointer {
		elem := reflect.New(ft.Elem())
		if err := assign(elem.Elem(), cv.Interface()); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	// []any → []string for taxonomy-style fields.
	if ft.Kind() == reflect.Slice && cv.Kind() == reflect.Slice && !cv.Type().AssignableTo(ft) {
		out := reflect.MakeSlice(ft, 0, cv.Len())
		for i := 0; i < cv.Len(); i++ {
			item := reflect.New(ft.Elem()).Elem()
			if err := assign(item, cv.Index(i).Interface()); err != nil {
				return err
			}
			out = reflect.Append(out, item)
		}
		field.Set(out)
		return nil
	}

	if cv.Type().AssignableTo(ft) {
		field.Set(cv)
		return nil
	}
	if cv.Type().ConvertibleTo(ft) && isNumeric(cv.Kind()) == isNumeric(ft.Kind()) {
		field.Set(cv.Convert(ft))
		return nil
	}

	return eris.Errorf("cannot assign %s to %s", cv.Type(), ft)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
