// Package components ships the builtin connector and analyser plugins:
// the fs and static connectors and the pattern_scan and
// subject_classifier analysers.
//
// Each factory validates its properties against an embedded JSON Schema
// at creation; availability checks (CanCreate) cover only environment
// concerns such as a missing LLM service.
package components

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/attestor-io/strata/container"
	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/types"
)

// Canonical schemas of the builtin components.
var (
	StandardInputSchema         = types.Schema{Name: "standard_input", Version: "1.0.0"}
	FindingSchema               = types.Schema{Name: "finding", Version: "1.0.0"}
	SubjectClassificationSchema = types.Schema{Name: "subject_classification", Version: "1.0.0"}
)

// Builtin returns the plugin source for the builtin components. Analysers
// that need infrastructure services resolve them from the given
// container at creation time.
func Builtin(services *container.Container) registry.Source {
	return &registry.StaticSource{
		ConnectorFactories: []registry.ConnectorFactory{
			&FSConnectorFactory{},
			&StaticConnectorFactory{},
		},
		AnalyserFactories: []registry.AnalyserFactory{
			&PatternScanFactory{},
			&SubjectClassifierFactory{Services: services},
		},
	}
}

// decodeConfig validates properties against schema and decodes them into
// out. The round trip through JSON normalises the yaml-decoded value
// into the shapes the validator and the target struct expect.
func decodeConfig(schema *jsonschema.Schema, config map[string]any, out any) error {
	if config == nil {
		config = map[string]any{}
	}
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid properties: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}
	return nil
}

// records extracts the conventional records list from message content.
// Content without a records key yields nil.
func records(content any) []any {
	m, ok := content.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := m["records"].([]any)
	return list
}
