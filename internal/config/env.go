package config

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// applyEnv walks c and overrides every field carrying an env tag whose
// variable is set.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	return walkEnv(reflect.ValueOf(c).Elem(), lookup)
}

func walkEnv(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field, ft := v.Field(i), t.Field(i)
		if !ft.IsExported() {
			continue
		}
		if key := ft.Tag.Get("env"); key != "" {
			s, ok := lookup(EnvPrefix + key)
			if !ok || s == "" {
				continue
			}
			if err := setFromString(field, s); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := walkEnv(field, lookup); err != nil {
				return err
			}
		}
	}
	return nil
}

var textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

func setFromString(field reflect.Value, s string) error {
	if field.Addr().Type().Implements(textUnmarshaler) {
		return field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		field.SetInt(int64(n))
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
