package validate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/config.schema.json
var configSchema []byte

const configSchemaName = "config.schema.json"

// ConfigSchema returns the embedded configuration schema.
func ConfigSchema() []byte {
	return configSchema
}

// ValidateConfigJSON validates a configuration document, already converted
// to JSON, against the embedded schema.
func ValidateConfigJSON(data []byte) error {
	return ValidateAgainstSchema(configSchemaName, configSchema, data, "")
}

// ValidateAgainstSchema compiles schema under name and validates data
// against it. ref optionally selects a sub-schema, e.g. "#/$defs/dependency".
func ValidateAgainstSchema(name string, schema, data []byte, ref string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("loading schema %s: %w", name, err)
	}

	sch, err := compiler.Compile(name + ref)
	if err != nil {
		return fmt.Errorf("compiling schema %s: %w", name, err)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("schema validation against %s failed:\n%s", name, ve.GoString())
		}
		return fmt.Errorf("schema validation against %s failed: %w", name, err)
	}
	return nil
}
