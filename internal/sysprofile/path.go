package sysprofile

import (
	"reflect"
	"strconv"
	"strings"
)

// Get resolves a dotted path (e.g. "gpu.nvidia.present", "distro.family",
// "hardware.cpu_cores") against the profile, using each struct field's json
// tag as the path segment name. It never panics: a path through a nil
// optional pointer, an unknown field, or an out-of-range slice index simply
// reports ok=false, matching the condition evaluator's unknown-path-is-false
// contract (§4.2).
func (p *Profile) Get(path string) (value interface{}, ok bool) {
	segments := strings.Split(path, ".")
	v := reflect.ValueOf(p).Elem()
	return resolve(v, segments)
}

func resolve(v reflect.Value, segments []string) (interface{}, bool) {
	for len(segments) > 0 {
		seg := segments[0]
		segments = segments[1:]

		for v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, false
			}
			v = v.Elem()
		}

		switch v.Kind() {
		case reflect.Struct:
			field, ok := fieldByJSONName(v, seg)
			if !ok {
				return nil, false
			}
			v = field
		case reflect.Map:
			mv := v.MapIndex(reflect.ValueOf(seg))
			if !mv.IsValid() {
				return nil, false
			}
			v = mv
		case reflect.Slice, reflect.Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= v.Len() {
				return nil, false
			}
			v = v.Index(idx)
		default:
			return nil, false
		}
	}

	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "" {
			continue
		}
		tagName := strings.Split(tag, ",")[0]
		if tagName == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}
