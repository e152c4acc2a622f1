package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override, e.g. SECCOLLECTOR_THRESHOLDS_CPU_HIGH
const EnvPrefix = "SECCOLLECTOR"

var durationType = reflect.TypeOf(time.Duration(0))

// EnvLoader overrides configuration fields from environment variables named
// after their yaml path. Maps take one variable per key:
// SECCOLLECTOR_LOG_PATHS_AUTH=/var/log/secure.
type EnvLoader struct {
	prefix  string
	dotenv  string
	environ func() []string
}

// NewEnvLoader creates a loader for prefix. dotenv names an optional .env file
// whose variables are loaded first without overriding the real environment.
func NewEnvLoader(prefix, dotenv string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		dotenv:  dotenv,
		environ: os.Environ,
	}
}

// Load applies the overrides to cfg
func (el *EnvLoader) Load(cfg *Config) error {
	if el.dotenv != "" {
		if _, err := os.Stat(el.dotenv); err == nil {
			if err := godotenv.Load(el.dotenv); err != nil {
				return fmt.Errorf("failed to load %s: %w", el.dotenv, err)
			}
		}
	}
	return el.loadStruct(reflect.ValueOf(cfg).Elem(), el.prefix)
}

func (el *EnvLoader) loadStruct(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		name := fieldType.Tag.Get("yaml")
		if name == "" || name == "-" {
			name = fieldType.Name
		}
		envName := buildEnvName(prefix, name)

		switch {
		case field.Kind() == reflect.Struct:
			if err := el.loadStruct(field, envName); err != nil {
				return err
			}
		case field.Kind() == reflect.Map:
			if err := el.loadMap(field, envName); err != nil {
				return err
			}
		default:
			if err := loadField(field, envName); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadField(field reflect.Value, envName string) error {
	value, ok := os.LookupEnv(envName)
	if !ok || value == "" {
		return nil
	}

	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", envName, err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(value)
	case field.Kind() == reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %w", envName, err)
		}
		field.SetInt(int64(n))
	case field.Kind() == reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float for %s: %w", envName, err)
		}
		field.SetFloat(f)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", envName, err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type %s for %s", field.Kind(), envName)
	}
	return nil
}

// loadMap handles map[string]string fields
func (el *EnvLoader) loadMap(field reflect.Value, envName string) error {
	if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
		return fmt.Errorf("only map[string]string is supported for %s", envName)
	}

	prefix := envName + "_"
	for _, kv := range el.environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if field.IsNil() {
			field.Set(reflect.MakeMap(field.Type()))
		}
		mapKey := strings.ToLower(strings.TrimPrefix(key, prefix))
		field.SetMapIndex(reflect.ValueOf(mapKey), reflect.ValueOf(value))
	}
	return nil
}

func buildEnvName(prefix, name string) string {
	name = strings.ToUpper(name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	if prefix != "" {
		return prefix + "_" + name
	}
	return name
}
