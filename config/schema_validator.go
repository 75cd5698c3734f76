package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// The manifest schemas ship inside the binary, so validation needs no
// network access or schema directory.
//
//go:embed bridgeconfig.schema.json
var bridgeConfigSchema string

//go:embed callerroster.schema.json
var callerRosterSchema string

// ValidateBridgeConfig checks a BridgeConfig manifest against its schema.
// Schema errors name the offending field, which beats the zero-context
// decode errors yaml produces once a bad value reaches the typed structs.
func ValidateBridgeConfig(yamlData []byte) error {
	return validateManifest("bridge", bridgeConfigSchema, yamlData)
}

// ValidateRoster checks a CallerRoster manifest against its schema.
func ValidateRoster(yamlData []byte) error {
	return validateManifest("roster", callerRosterSchema, yamlData)
}

// validateManifest runs yamlData through a JSON schema. gojsonschema only
// speaks JSON, so the document is decoded from YAML and re-encoded first.
func validateManifest(what, schema string, yamlData []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(yamlData, &doc); err != nil {
		return fmt.Errorf("parse %s manifest: %w", what, err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s manifest: %w", what, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(jsonDoc),
	)
	if err != nil {
		return fmt.Errorf("validate %s manifest: %w", what, err)
	}
	if result.Valid() {
		return nil
	}

	lines := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		lines = append(lines, "  - "+violation(re))
	}
	return fmt.Errorf("%s configuration does not match schema:\n%s", what, strings.Join(lines, "\n"))
}

// violation renders one schema error as "field: description (value: v)".
func violation(re gojsonschema.ResultError) string {
	if v := re.Value(); v != nil {
		return fmt.Sprintf("%s: %s (value: %v)", re.Field(), re.Description(), v)
	}
	return fmt.Sprintf("%s: %s", re.Field(), re.Description())
}
