// Package plan turns a parsed runbook into an immutable execution plan.
//
// Planning flattens child runbooks into namespaced artifacts, builds and
// validates the dependency DAG, checks that every reference resolves,
// and walks the graph in topological order resolving each artifact's
// output schema against the component registry. All plan-time errors
// carry enough context to be actionable without a stack trace.
package plan

import (
	"fmt"

	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/runbook"
	"github.com/attestor-io/strata/types"
)

// ArtifactSchema records the planner's schema resolution for one
// artifact: the matched input requirement combination (nil for sources,
// reuses, and pass-throughs) and the resolved output schema.
type ArtifactSchema struct {
	Requirements []types.InputRequirement
	Output       types.Schema
}

// ExecutionPlan is the planner's output. It is read-only after Plan
// returns; the executor and reporting layers never mutate it.
type ExecutionPlan struct {
	Runbook     *runbook.Runbook
	RunbookPath string
	RunbookHash string

	Artifacts map[string]*FlatArtifact
	DAG       *DAG
	Schemas   map[string]ArtifactSchema

	// Aliases maps names visible in a declaring runbook (an artifact id
	// carrying child_runbook with output:, or an output_mapping target)
	// to the namespaced id that backs them. ReversedAliases is the
	// inverse, used to label results with the names users wrote.
	Aliases         map[string]string
	ReversedAliases map[string]string
}

// ArtifactIDs returns all post-flatten artifact ids, sorted.
func (p *ExecutionPlan) ArtifactIDs() []string {
	return sortedKeys(p.Artifacts)
}

// Alias returns the user-visible name for a namespaced id, or empty.
func (p *ExecutionPlan) Alias(id string) string {
	return p.ReversedAliases[id]
}

// Planner resolves runbooks against a component registry.
type Planner struct {
	registry *registry.Registry
}

// NewPlanner returns a planner over the given registry.
func NewPlanner(reg *registry.Registry) *Planner {
	return &Planner{registry: reg}
}

// Plan parses the runbook at path and produces an execution plan, or
// the first plan-time error encountered.
func (p *Planner) Plan(path string) (*ExecutionPlan, error) {
	rb, err := runbook.Parse(path)
	if err != nil {
		return nil, err
	}
	hash, err := runbook.HashFile(path)
	if err != nil {
		return nil, err
	}

	flat, err := flatten(rb, path)
	if err != nil {
		return nil, err
	}

	deps := make(map[string][]string, len(flat.artifacts))
	for id, fa := range flat.artifacts {
		deps[id] = []string(fa.Definition.Inputs)
	}
	dag := NewDAG(deps)

	order, err := dag.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	for _, id := range sortedKeys(flat.artifacts) {
		for _, dep := range dag.Dependencies(id) {
			if _, ok := flat.artifacts[dep]; !ok {
				return nil, &MissingArtifactError{ID: dep, Referrer: id}
			}
		}
	}

	checksByTarget := make(map[string][]bindingCheck)
	for _, check := range flat.checks {
		checksByTarget[check.ArtifactID] = append(checksByTarget[check.ArtifactID], check)
	}

	schemas := make(map[string]ArtifactSchema, len(flat.artifacts))
	for _, id := range order {
		fa := flat.artifacts[id]
		resolved, err := p.resolveSchema(fa, dag.Dependencies(id), schemas)
		if err != nil {
			return nil, err
		}
		schemas[id] = resolved

		for _, check := range checksByTarget[id] {
			if !resolved.Output.Compatible(check.Want) {
				return nil, &SchemaCompatibilityError{
					Artifact: check.Referrer,
					Provided: types.NewSchemaSet(resolved.Output),
					Reason: fmt.Sprintf("child runbook %q input %q expects schema %s",
						check.ChildPath, check.InputName, check.Want.Ref()),
				}
			}
		}
	}

	reversed := make(map[string]string, len(flat.aliases))
	for name, id := range flat.aliases {
		reversed[id] = name
	}

	return &ExecutionPlan{
		Runbook:         rb,
		RunbookPath:     path,
		RunbookHash:     hash,
		Artifacts:       flat.artifacts,
		DAG:             dag,
		Schemas:         schemas,
		Aliases:         flat.aliases,
		ReversedAliases: reversed,
	}, nil
}

// resolveSchema derives one artifact's schema record. Dependencies are
// already resolved; the planner walks in topological order.
func (p *Planner) resolveSchema(fa *FlatArtifact, deps []string, schemas map[string]ArtifactSchema) (ArtifactSchema, error) {
	def := fa.Definition

	override, hasOverride, err := parseOverride(def.OutputSchema)
	if err != nil {
		return ArtifactSchema{}, err
	}

	if def.Reuse != nil {
		// The parser guarantees reuse artifacts declare output_schema;
		// the stored message's schema is verified against it when the
		// artifact executes.
		return ArtifactSchema{Output: override}, nil
	}

	if def.Source != nil {
		factory, ok := p.registry.Connector(def.Source.Type)
		if !ok {
			return ArtifactSchema{}, &ComponentNotFoundError{Kind: "connector", Type: def.Source.Type, Artifact: fa.ID}
		}
		if hasOverride {
			return ArtifactSchema{Output: override}, nil
		}
		declared := factory.Info().OutputSchemas
		if len(declared) == 0 {
			return ArtifactSchema{}, fmt.Errorf("connector %q declares no output schema", def.Source.Type)
		}
		return ArtifactSchema{Output: declared[0]}, nil
	}

	provided := types.SchemaSet{}
	for _, dep := range deps {
		provided[schemas[dep].Output.Ref()] = schemas[dep].Output
	}

	if def.Process == nil {
		if len(provided) != 1 {
			return ArtifactSchema{}, &SchemaCompatibilityError{
				Artifact: fa.ID,
				Provided: provided,
				Reason:   "pass-through artifacts require all inputs to share one schema",
			}
		}
		var single types.Schema
		for _, s := range provided {
			single = s
		}
		if hasOverride {
			single = override
		}
		return ArtifactSchema{Output: single}, nil
	}

	factory, ok := p.registry.Analyser(def.Process.Type)
	if !ok {
		return ArtifactSchema{}, &ComponentNotFoundError{Kind: "analyser", Type: def.Process.Type, Artifact: fa.ID}
	}
	info := factory.Info()

	var matched []types.InputRequirement
	found := false
	for _, combo := range info.InputRequirements {
		if types.RequirementSet(combo).Equal(provided) {
			matched = combo
			found = true
			break
		}
	}
	if !found {
		available := make([]types.SchemaSet, 0, len(info.InputRequirements))
		for _, combo := range info.InputRequirements {
			available = append(available, types.RequirementSet(combo))
		}
		return ArtifactSchema{}, &SchemaCompatibilityError{
			Artifact:  fa.ID,
			Component: def.Process.Type,
			Provided:  provided,
			Available: available,
		}
	}

	output := override
	if !hasOverride {
		if len(info.OutputSchemas) == 0 {
			return ArtifactSchema{}, fmt.Errorf("analyser %q declares no output schema", def.Process.Type)
		}
		output = info.OutputSchemas[0]
	}
	return ArtifactSchema{Requirements: matched, Output: output}, nil
}

func parseOverride(ref string) (types.Schema, bool, error) {
	if ref == "" {
		return types.Schema{}, false, nil
	}
	schema, err := types.ParseSchemaRef(ref)
	if err != nil {
		return types.Schema{}, false, err
	}
	return schema, true, nil
}
