package components

import (
	"context"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/types"
)

var staticConfigSchema = jsonschema.MustCompileString("static_config.json", `{
	"type": "object",
	"required": ["records"],
	"additionalProperties": false,
	"properties": {
		"records": {},
		"schema": {"type": "string", "minLength": 1}
	}
}`)

type staticConfig struct {
	Records any    `json:"records"`
	Schema  string `json:"schema"`
}

// StaticConnectorFactory builds the static connector, which emits its
// records property verbatim. It exists for fixtures, runbook examples,
// and injected input defaults.
type StaticConnectorFactory struct{}

// Info implements registry.ConnectorFactory.
func (f *StaticConnectorFactory) Info() registry.ComponentInfo {
	return registry.ComponentInfo{
		Name:          "static",
		Kind:          registry.KindConnector,
		OutputSchemas: []types.Schema{StandardInputSchema},
	}
}

// CanCreate implements registry.ConnectorFactory.
func (f *StaticConnectorFactory) CanCreate(config map[string]any) bool { return true }

// Create implements registry.ConnectorFactory. The schema property
// selects the emitted schema ref; artifacts that set it to anything
// other than the default should declare a matching output_schema so the
// plan agrees with the emitted message.
func (f *StaticConnectorFactory) Create(config map[string]any) (registry.Connector, error) {
	var cfg staticConfig
	if err := decodeConfig(staticConfigSchema, config, &cfg); err != nil {
		return nil, fmt.Errorf("static connector: %w", err)
	}
	schema := StandardInputSchema
	if cfg.Schema != "" {
		parsed, err := types.ParseSchemaRef(cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("static connector: %w", err)
		}
		schema = parsed
	}
	return &staticConnector{records: cfg.Records, schema: schema}, nil
}

type staticConnector struct {
	records any
	schema  types.Schema
}

// Extract implements registry.Connector.
func (c *staticConnector) Extract(ctx context.Context) (*types.Message, error) {
	msg := types.NewMessage(c.schema, map[string]any{"records": c.records})
	return &msg, nil
}

// Verify StaticConnectorFactory implements registry.ConnectorFactory.
var _ registry.ConnectorFactory = (*StaticConnectorFactory)(nil)
