// Package utils holds small helpers shared by the CLI commands.
package utils

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GetSchemaFromConfig renders the JSON schema describing a config
// struct, pretty-printed for terminal output.
func GetSchemaFromConfig(config any) (string, error) {
	schema := jsonschema.Reflect(config)

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(out), nil
}
