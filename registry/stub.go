package registry

import (
	"context"
	"fmt"

	"github.com/attestor-io/strata/types"
)

// StaticSource is a Source over fixed factory slices. Use to install
// built-in components or stub factories in tests.
type StaticSource struct {
	ConnectorFactories []ConnectorFactory
	AnalyserFactories  []AnalyserFactory
}

// Connectors implements Source.
func (s StaticSource) Connectors() []ConnectorFactory { return s.ConnectorFactories }

// Analysers implements Source.
func (s StaticSource) Analysers() []AnalyserFactory { return s.AnalyserFactories }

// Verify StaticSource implements Source.
var _ Source = StaticSource{}

// StubConnectorFactory is a configurable connector factory for tests.
// Extract returns a message with the declared output schema and the
// configured content.
type StubConnectorFactory struct {
	ComponentName string
	Output        types.Schema
	Content       any
	ExtractErr    error
	Unavailable   bool
	CreateCalls   int
}

// Info implements ConnectorFactory.
func (f *StubConnectorFactory) Info() ComponentInfo {
	return ComponentInfo{
		Name:          f.ComponentName,
		Kind:          KindConnector,
		OutputSchemas: []types.Schema{f.Output},
	}
}

// CanCreate implements ConnectorFactory.
func (f *StubConnectorFactory) CanCreate(config map[string]any) bool {
	return !f.Unavailable
}

// Create implements ConnectorFactory.
func (f *StubConnectorFactory) Create(config map[string]any) (Connector, error) {
	f.CreateCalls++
	return &stubConnector{factory: f}, nil
}

type stubConnector struct {
	factory *StubConnectorFactory
}

func (c *stubConnector) Extract(ctx context.Context) (*types.Message, error) {
	if c.factory.ExtractErr != nil {
		return nil, c.factory.ExtractErr
	}
	msg := types.NewMessage(c.factory.Output, c.factory.Content)
	return &msg, nil
}

// Verify StubConnectorFactory implements ConnectorFactory.
var _ ConnectorFactory = (*StubConnectorFactory)(nil)

// StubAnalyserFactory is a configurable analyser factory for tests.
// Process returns a message whose content is the list of input contents
// unless Content overrides it.
type StubAnalyserFactory struct {
	ComponentName string
	Requirements  [][]types.InputRequirement
	Output        types.Schema
	Content       any
	ProcessErr    error
	Unavailable   bool
	CreateCalls   int
}

// Info implements AnalyserFactory.
func (f *StubAnalyserFactory) Info() ComponentInfo {
	return ComponentInfo{
		Name:              f.ComponentName,
		Kind:              KindAnalyser,
		InputRequirements: f.Requirements,
		OutputSchemas:     []types.Schema{f.Output},
	}
}

// CanCreate implements AnalyserFactory.
func (f *StubAnalyserFactory) CanCreate(config map[string]any) bool {
	return !f.Unavailable
}

// Create implements AnalyserFactory.
func (f *StubAnalyserFactory) Create(config map[string]any) (Analyser, error) {
	f.CreateCalls++
	if f.Unavailable {
		return nil, fmt.Errorf("analyser %q unavailable", f.ComponentName)
	}
	return &stubAnalyser{factory: f}, nil
}

type stubAnalyser struct {
	factory *StubAnalyserFactory
}

func (a *stubAnalyser) Process(ctx context.Context, inputs []*types.Message, output types.Schema) (*types.Message, error) {
	if a.factory.ProcessErr != nil {
		return nil, a.factory.ProcessErr
	}
	content := a.factory.Content
	if content == nil {
		collected := make([]any, 0, len(inputs))
		for _, in := range inputs {
			collected = append(collected, in.Content)
		}
		content = collected
	}
	msg := types.NewMessage(output, content)
	return &msg, nil
}

// Verify StubAnalyserFactory implements AnalyserFactory.
var _ AnalyserFactory = (*StubAnalyserFactory)(nil)
