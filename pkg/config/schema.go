package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "audittrail.schema.json"

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

// Schema returns the embedded JSON schema document.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateSchema checks a decoded document section against the schema.
// doc must hold JSON-compatible values (maps, slices, strings, numbers).
func ValidateSchema(source string, doc any) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	// Re-encode so YAML-decoded numbers reach the validator as json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document for schema validation: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("failed to decode document for schema validation: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	result := &SchemaError{Source: source}
	collectSchemaViolations(verr, result)
	return result
}

// collectSchemaViolations flattens the leaf causes of a validation error.
func collectSchemaViolations(err *jsonschema.ValidationError, result *SchemaError) {
	if len(err.Causes) == 0 {
		result.Violations = append(result.Violations, Violation{
			Path:    pointerToPath(err.InstanceLocation),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaViolations(cause, result)
	}
}

// pointerToPath converts "/loggers/1/syslog/protocol" to
// "loggers[1].syslog.protocol".
func pointerToPath(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.Split(pointer, "/") {
		part = strings.NewReplacer("~1", "/", "~0", "~").Replace(part)
		if isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
