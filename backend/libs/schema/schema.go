// Package schema decodes JSON payloads after checking them against a JSON Schema.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrEncoding marks payloads that are not valid UTF-8 text.
	ErrEncoding = errors.New("schema: invalid utf-8")
	// ErrSchema marks payloads that are not JSON or do not match the schema.
	ErrSchema = errors.New("schema: payload does not match schema")
)

// Validator checks raw payloads against one compiled schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// Compile builds a validator from a draft 2020-12 schema source.
func Compile(name, source string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	url := name
	if !strings.Contains(url, "://") {
		url = "mem://" + name
	}
	if err := compiler.AddResource(url, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("schema: add %s: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", name, err)
	}
	return &Validator{name: name, schema: compiled}, nil
}

// MustCompile is Compile for package-level schemas known at build time.
func MustCompile(name, source string) *Validator {
	v, err := Compile(name, source)
	if err != nil {
		panic(err)
	}
	return v
}

// Decode validates raw and unmarshals it into out. Errors wrap ErrEncoding or ErrSchema.
func (v *Validator) Decode(raw []byte, out any) error {
	if !utf8.Valid(raw) {
		return ErrEncoding
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after %s document", ErrSchema, v.name)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
