// internal/schema/validator.go
// Package schema provides JSON schema validation for catalog documents.
// Every record and preference document is checked here before it is stored.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/vannputh/analytics/internal/model"
)

// Document kinds the validator knows about.
const (
	KindRecord      = "record"
	KindPreferences = "preferences"
)

// ValidationError lists the offending fields and what is wrong with each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator validates documents against compiled JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator compiles the record and preference schemas.
func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	if err := v.loadSchema(KindRecord, recordSchema()); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	if err := v.loadSchema(KindPreferences, preferencesSchema()); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return v, nil
}

func (v *Validator) loadSchema(kind string, doc map[string]any) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	v.schemas[kind] = schema
	return nil
}

// ValidateRecord checks a record: non-blank title, known medium and status,
// ratings in [0, 10], non-negative counts and YYYY-MM-DD dates.
func (v *Validator) ValidateRecord(r model.Record) error {
	return v.Validate(KindRecord, r)
}

// ValidatePreferences checks a preferences document.
func (v *Validator) ValidatePreferences(p model.Preferences) error {
	return v.Validate(KindPreferences, p)
}

// Validate marshals doc to JSON and checks it against the schema for kind.
// A document that violates the schema yields a *ValidationError.
func (v *Validator) Validate(kind string, doc any) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("schema not found for %s", kind)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	fields := make(map[string]string)
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if p, ok := desc.Details()["property"].(string); ok {
				field = p
			}
		}
		if _, seen := fields[field]; !seen {
			fields[field] = desc.Description()
		}
	}
	return &ValidationError{Fields: fields}
}

func recordSchema() map[string]any {
	media := make([]any, 0, len(model.Media))
	for _, m := range model.Media {
		media = append(media, string(m))
	}
	statuses := make([]any, 0, len(model.Statuses))
	for _, s := range model.Statuses {
		statuses = append(statuses, string(s))
	}
	rating := map[string]any{"type": "number", "minimum": 0, "maximum": 10}
	date := map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`, "format": "date"}
	list := map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}}

	return map[string]any{
		"type":     "object",
		"required": []any{"title"},
		"properties": map[string]any{
			"title":          map[string]any{"type": "string", "pattern": `\S`, "maxLength": 512},
			"medium":         map[string]any{"type": "string", "enum": media},
			"status":         map[string]any{"type": "string", "enum": statuses},
			"type":           map[string]any{"type": "string", "maxLength": 128},
			"genre":          list,
			"language":       list,
			"platform":       map[string]any{"type": "string", "maxLength": 128},
			"episodes":       map[string]any{"type": "integer", "minimum": 0},
			"length":         map[string]any{"type": "string", "maxLength": 64},
			"my_rating":      rating,
			"average_rating": rating,
			"price_cents":    map[string]any{"type": "integer", "minimum": 0},
			"start_date":     date,
			"finish_date":    date,
			"poster_url":     map[string]any{"type": "string", "maxLength": 2048},
			"imdb_id":        map[string]any{"type": "string", "maxLength": 64},
			"notes":          map[string]any{"type": "string", "maxLength": 8192},
		},
	}
}

func preferencesSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"user_id"},
		"properties": map[string]any{
			"user_id":         map[string]any{"type": "string", "minLength": 1},
			"visible_columns": map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}},
			"filter":          map[string]any{"type": "string", "maxLength": 4096},
		},
	}
}
