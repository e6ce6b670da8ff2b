// SPDX-License-Identifier: AGPL-3.0-only
package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const recordSchemaURL = "todolist://tasks.schema.json"

// recordSchema describes the persisted task record
const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "title", "completed"],
    "properties": {
      "id": {"type": "string"},
      "title": {"type": "string"},
      "completed": {"type": "boolean"}
    }
  }
}`

func compileRecordSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchemaURL, strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(recordSchemaURL)
}

// validateRecord checks raw against the record schema
func validateRecord(schema *jsonschema.Schema, raw []byte) error {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode tasks: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid tasks record: %w", err)
	}
	return nil
}
