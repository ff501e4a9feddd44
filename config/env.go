package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays environment variables onto cfg. Fields opt in via their
// `env` struct tag; unset variables leave the existing value alone.
func applyEnv(cfg *Config) error {
	return walkEnvFields(reflect.ValueOf(cfg))
}

func walkEnvFields(v reflect.Value) error {
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("expected struct pointer, got %s", v.Kind())
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		// Nested structs carry their own env tags.
		if field.Kind() == reflect.Struct && field.CanAddr() {
			if err := walkEnvFields(field.Addr()); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := os.LookupEnv(name)
		if !ok || raw == "" {
			continue
		}
		if err := assignEnvValue(field, sf, raw); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
	}
	return nil
}

func assignEnvValue(field reflect.Value, sf reflect.StructField, raw string) error {
	if !field.CanSet() {
		return fmt.Errorf("field %s is not settable", sf.Name)
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid bool %q", raw)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if sf.Type == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("invalid duration %q", raw)
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer %q", raw)
		}
		field.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", raw)
		}
		field.SetUint(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q", raw)
		}
		field.SetFloat(f)

	case reflect.Slice:
		// Comma-separated string slices only (API keys, webhook endpoints).
		if sf.Type.Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element %s", sf.Type.Elem().Kind())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(sf.Type, len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(out)

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
