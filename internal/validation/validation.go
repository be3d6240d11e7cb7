// Package validation checks request bodies against the JSON schemas shipped
// with the binary.
package validation

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"transport-backend/internal/apperr"

	"github.com/xeipuuv/gojsonschema"
)

const (
	OrderCreate = "order_create"
	Fanout      = "fanout"
	TripDetails = "trip_details"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	once    sync.Once
	schemas map[string]*gojsonschema.Schema
	loadErr error
)

func load() {
	schemas = make(map[string]*gojsonschema.Schema)
	for _, name := range []string{OrderCreate, Fanout, TripDetails} {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			loadErr = fmt.Errorf("read schema %s: %w", name, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			loadErr = fmt.Errorf("compile schema %s: %w", name, err)
			return
		}
		schemas[name] = s
	}
}

// Validate checks the raw JSON body against the named schema. Violations come
// back as a single validation error listing every failed field.
func Validate(name string, body []byte) error {
	once.Do(load)
	if loadErr != nil {
		return apperr.Internal(loadErr, "validation schemas unavailable")
	}
	schema, ok := schemas[name]
	if !ok {
		return apperr.Internal(fmt.Errorf("unknown schema %q", name), "validation schema missing")
	}
	if len(body) == 0 {
		return apperr.Validation("request body is required")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperr.Validation("request body is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, describe(desc))
	}
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func describe(desc gojsonschema.ResultError) string {
	switch desc.Type() {
	case "number_any_of":
		if desc.Field() == "(root)" {
			return "either estimated_tons or number_of_goods is required"
		}
	}
	return desc.String()
}
