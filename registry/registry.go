// Package registry maps component type names from runbook files to the
// factories that build them.
//
// Factories are discovered at process start from one or more Sources
// and looked up by name during planning (schema resolution) and
// execution (instance creation). The registry holds factories, never
// instances.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/attestor-io/strata/types"
)

// Kind distinguishes the two component families.
type Kind string

const (
	KindConnector Kind = "connector"
	KindAnalyser  Kind = "analyser"
)

// ComponentInfo is the static metadata a factory declares about its
// components. InputRequirements lists the accepted input schema
// combinations; it is empty for connectors. Frameworks optionally tags
// the compliance frameworks the component serves.
type ComponentInfo struct {
	Name              string
	Kind              Kind
	InputRequirements [][]types.InputRequirement
	OutputSchemas     []types.Schema
	Frameworks        []string
}

// Connector extracts data from an external system into a message.
// Configuration is supplied at creation, not per call.
type Connector interface {
	Extract(ctx context.Context) (*types.Message, error)
}

// Analyser derives a message from upstream messages. The output schema
// the planner resolved for the artifact is passed through.
type Analyser interface {
	Process(ctx context.Context, inputs []*types.Message, output types.Schema) (*types.Message, error)
}

// ConnectorFactory builds connectors from runbook source properties.
type ConnectorFactory interface {
	Info() ComponentInfo
	CanCreate(config map[string]any) bool
	Create(config map[string]any) (Connector, error)
}

// AnalyserFactory builds analysers from runbook process properties.
type AnalyserFactory interface {
	Info() ComponentInfo
	CanCreate(config map[string]any) bool
	Create(config map[string]any) (Analyser, error)
}

// Source is a plugin discovery point: anything that can enumerate
// factories at startup.
type Source interface {
	Connectors() []ConnectorFactory
	Analysers() []AnalyserFactory
}

// Registry indexes factories by component name. Safe for concurrent
// lookup after installation.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]ConnectorFactory
	analysers  map[string]AnalyserFactory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		connectors: make(map[string]ConnectorFactory),
		analysers:  make(map[string]AnalyserFactory),
	}
}

// Install registers every factory from the given sources. Returns an
// error if two factories of the same kind claim the same name.
func (r *Registry) Install(sources ...Source) error {
	for _, src := range sources {
		for _, f := range src.Connectors() {
			if err := r.RegisterConnector(f); err != nil {
				return err
			}
		}
		for _, f := range src.Analysers() {
			if err := r.RegisterAnalyser(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// RegisterConnector adds a connector factory. Returns an error if the
// name is already taken.
func (r *Registry) RegisterConnector(f ConnectorFactory) error {
	name := f.Info().Name
	if name == "" {
		return fmt.Errorf("connector factory declares no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("connector %q already registered", name)
	}
	r.connectors[name] = f
	return nil
}

// RegisterAnalyser adds an analyser factory. Returns an error if the
// name is already taken.
func (r *Registry) RegisterAnalyser(f AnalyserFactory) error {
	name := f.Info().Name
	if name == "" {
		return fmt.Errorf("analyser factory declares no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.analysers[name]; exists {
		return fmt.Errorf("analyser %q already registered", name)
	}
	r.analysers[name] = f
	return nil
}

// Connector returns the factory registered under name.
func (r *Registry) Connector(name string) (ConnectorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.connectors[name]
	return f, ok
}

// Analyser returns the factory registered under name.
func (r *Registry) Analyser(name string) (AnalyserFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.analysers[name]
	return f, ok
}

// ConnectorNames returns all registered connector names, sorted.
func (r *Registry) ConnectorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.connectors)
}

// AnalyserNames returns all registered analyser names, sorted.
func (r *Registry) AnalyserNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedNames(r.analysers)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
