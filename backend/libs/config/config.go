package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPathEnv = "CONFIG_FILE"
	defaultDotEnvPathEnv = "DOTENV_FILE"
)

// LoadConfig fills target in three layers: a dotenv file, the YAML file named by CONFIG_FILE,
// then process environment variables. Later layers win, except that dotenv never replaces a
// variable the process already has.
//
// Leaf fields read the key from their `env` tag, or PARENT_CHILD built from field names when
// the tag is absent. `env:"-"` skips a field. Every malformed variable is reported, not only
// the first.
func LoadConfig(target any) error {
	if target == nil {
		return errors.New("config: target is nil")
	}
	root := reflect.ValueOf(target)
	if root.Kind() != reflect.Pointer || root.Elem().Kind() != reflect.Struct {
		return errors.New("config: target must be pointer to struct")
	}

	if err := loadDotEnv(os.Getenv(defaultDotEnvPathEnv)); err != nil {
		return err
	}
	if path := os.Getenv(defaultConfigPathEnv); path != "" {
		if err := loadYAML(path, target); err != nil {
			return err
		}
	}

	var errs []error
	for _, b := range envBindings(root.Elem(), "") {
		raw, ok := os.LookupEnv(b.key)
		if !ok {
			continue
		}
		if err := setFromString(b.field, raw); err != nil {
			errs = append(errs, fmt.Errorf("config: parse %s: %w", b.key, err))
		}
	}
	return errors.Join(errs...)
}

// loadDotEnv reads path, or ./.env when path is empty and the file exists.
func loadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load dotenv: %w", err)
	}
	return nil
}

func loadYAML(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open file: %w", err)
	}
	defer f.Close()

	// An empty file leaves the defaults untouched.
	if err := yaml.NewDecoder(f).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml %s: %w", path, err)
	}
	return nil
}

type binding struct {
	key   string
	field reflect.Value
}

// envBindings flattens a struct into settable leaf fields paired with their env keys.
// Nested structs extend the prefix of their fields.
func envBindings(v reflect.Value, prefix string) []binding {
	var out []binding
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("env")
		if tag == "-" {
			continue
		}
		key := envKey(prefix, sf.Name)
		if tag != "" {
			key = envKey("", tag)
		}

		if field.Kind() == reflect.Struct {
			out = append(out, envBindings(field, key)...)
			continue
		}
		out = append(out, binding{key: key, field: field})
	}
	return out
}

func envKey(prefix, name string) string {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

func setFromString(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
