// Package runbook handles parsing and validation of runbook YAML files.
//
// A runbook declares a set of artifacts. Each artifact names exactly one
// production method (a connector source, upstream inputs, or reuse from a
// prior run) and optionally a processing step (an analyser or a child
// runbook). The parser is pure over the file bytes and the environment
// snapshot; structural invariants are enforced here, while cross-artifact
// reference and schema checks belong to the planner.
package runbook

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/attestor-io/strata/types"
)

// DefaultMaxConcurrency bounds simultaneous artifact production when the
// runbook does not set config.max_concurrency.
const DefaultMaxConcurrency = 10

// MergeConcatenate is the only merge strategy currently supported for
// same-schema fan-in.
const MergeConcatenate = "concatenate"

// Runbook is the typed model of a runbook YAML file.
type Runbook struct {
	Name        string                       `yaml:"name"`
	Description string                       `yaml:"description"`
	Contact     string                       `yaml:"contact,omitempty"`
	Config      Config                       `yaml:"config,omitempty"`
	Inputs      map[string]InputDeclaration  `yaml:"inputs,omitempty"`
	Outputs     map[string]OutputDeclaration `yaml:"outputs,omitempty"`
	Artifacts   map[string]Artifact          `yaml:"artifacts"`
}

// Config holds run-level settings.
type Config struct {
	Timeout        int      `yaml:"timeout,omitempty"` // seconds, 0 means no timeout
	CostLimit      float64  `yaml:"cost_limit,omitempty"`
	MaxConcurrency int      `yaml:"max_concurrency,omitempty"`
	TemplatePaths  []string `yaml:"template_paths,omitempty"`
}

// InputDeclaration declares a named input slot. A runbook declaring any
// inputs is reusable as a child runbook and must not contain sources.
type InputDeclaration struct {
	InputSchema string `yaml:"input_schema"`
	Optional    bool   `yaml:"optional,omitempty"`
	Default     any    `yaml:"default,omitempty"`
	Sensitive   bool   `yaml:"sensitive,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Schema parses the declared input_schema reference.
func (d InputDeclaration) Schema() (types.Schema, error) {
	return types.ParseSchemaRef(d.InputSchema)
}

// OutputDeclaration exposes a local artifact under a stable output name.
type OutputDeclaration struct {
	Artifact    string `yaml:"artifact"`
	Description string `yaml:"description,omitempty"`
}

// Artifact is the unit of work declared in a runbook.
type Artifact struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Contact     string `yaml:"contact,omitempty"`

	// Production method, exactly one of the three.
	Source *ComponentConfig `yaml:"source,omitempty"`
	Inputs StringList       `yaml:"inputs,omitempty"`
	Reuse  *Reuse           `yaml:"reuse,omitempty"`

	// Processing, at most one of the two.
	Process      *ComponentConfig `yaml:"process,omitempty"`
	ChildRunbook *ChildRunbook    `yaml:"child_runbook,omitempty"`

	Merge        string `yaml:"merge,omitempty"`
	OutputSchema string `yaml:"output_schema,omitempty"`
	Output       bool   `yaml:"output,omitempty"`
	Optional     bool   `yaml:"optional,omitempty"`
}

// ComponentConfig selects a registered connector or analyser by type name
// and carries its opaque properties.
type ComponentConfig struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

// Reuse points at an artifact produced by a prior run.
type Reuse struct {
	FromRun  string `yaml:"from_run"`
	Artifact string `yaml:"artifact"`
}

// ChildRunbook embeds another runbook's artifacts at plan time.
type ChildRunbook struct {
	Path          string            `yaml:"path"`
	InputMapping  map[string]string `yaml:"input_mapping,omitempty"`
	Output        string            `yaml:"output,omitempty"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty"`
}

// StringList accepts either a scalar string or a sequence of strings in
// YAML. A nil StringList means the field was absent.
type StringList []string

// UnmarshalYAML decodes "inputs: a" and "inputs: [a, b]" alike.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}

// MarshalYAML emits the scalar form for single-element lists.
func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// IsReusable reports whether the runbook declares inputs and can therefore
// be embedded as a child runbook.
func (rb *Runbook) IsReusable() bool { return len(rb.Inputs) > 0 }

// MaxConcurrency returns the configured bound or the default.
func (rb *Runbook) MaxConcurrency() int {
	if rb.Config.MaxConcurrency > 0 {
		return rb.Config.MaxConcurrency
	}
	return DefaultMaxConcurrency
}

// ArtifactIDs returns the artifact ids in sorted order for deterministic
// iteration.
func (rb *Runbook) ArtifactIDs() []string {
	ids := make([]string, 0, len(rb.Artifacts))
	for id := range rb.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RequiredInputs returns the names of non-optional declared inputs, sorted.
func (rb *Runbook) RequiredInputs() []string {
	var names []string
	for name, decl := range rb.Inputs {
		if !decl.Optional {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// MergeStrategy returns the artifact's merge strategy, defaulting to
// concatenate.
func (a *Artifact) MergeStrategy() string {
	if a.Merge == "" {
		return MergeConcatenate
	}
	return a.Merge
}

// Validate enforces the structural invariants the parser guarantees.
// Reference existence across artifacts and schema compatibility are the
// planner's job.
func (rb *Runbook) Validate() error {
	if rb.Name == "" {
		return &SchemaError{Runbook: rb.Name, Reason: "name is required"}
	}
	if rb.Description == "" {
		return &SchemaError{Runbook: rb.Name, Reason: "description is required"}
	}

	for _, name := range sortedMapKeys(rb.Inputs) {
		if err := rb.validateInputDecl(name, rb.Inputs[name]); err != nil {
			return err
		}
	}

	for _, id := range rb.ArtifactIDs() {
		if err := rb.validateArtifact(id, rb.Artifacts[id]); err != nil {
			return err
		}
	}

	for _, name := range sortedMapKeys(rb.Outputs) {
		decl := rb.Outputs[name]
		if decl.Artifact == "" {
			return &SchemaError{Runbook: rb.Name, Reason: fmt.Sprintf("output %q: artifact is required", name)}
		}
		if _, ok := rb.Artifacts[decl.Artifact]; !ok {
			return &SchemaError{Runbook: rb.Name, Reason: fmt.Sprintf("output %q references undefined artifact %q", name, decl.Artifact)}
		}
	}

	if rb.IsReusable() {
		for _, id := range rb.ArtifactIDs() {
			if rb.Artifacts[id].Source != nil {
				return &SchemaError{Runbook: rb.Name, Artifact: id, Reason: "reusable runbooks must not contain source artifacts"}
			}
		}
	}

	return nil
}

func (rb *Runbook) validateInputDecl(name string, decl InputDeclaration) error {
	if decl.InputSchema == "" {
		return &SchemaError{Runbook: rb.Name, Reason: fmt.Sprintf("input %q: input_schema is required", name)}
	}
	if _, err := types.ParseSchemaRef(decl.InputSchema); err != nil {
		return &SchemaError{Runbook: rb.Name, Reason: fmt.Sprintf("input %q: %v", name, err)}
	}
	if decl.Default != nil && !decl.Optional {
		return &SchemaError{Runbook: rb.Name, Reason: fmt.Sprintf("input %q: default requires optional: true", name)}
	}
	return nil
}

func (rb *Runbook) validateArtifact(id string, a Artifact) error {
	fail := func(reason string) error {
		return &SchemaError{Runbook: rb.Name, Artifact: id, Reason: reason}
	}

	methods := 0
	if a.Source != nil {
		methods++
	}
	if a.Inputs != nil {
		methods++
	}
	if a.Reuse != nil {
		methods++
	}
	if methods != 1 {
		return fail("exactly one of source, inputs, or reuse is required")
	}

	if a.Source != nil && a.Source.Type == "" {
		return fail("source.type is required")
	}
	if a.Process != nil && a.Process.Type == "" {
		return fail("process.type is required")
	}
	if a.Reuse != nil {
		if a.Reuse.FromRun == "" || a.Reuse.Artifact == "" {
			return fail("reuse requires from_run and artifact")
		}
		if a.OutputSchema == "" {
			return fail("reuse requires output_schema")
		}
	}

	if a.Process != nil && a.ChildRunbook != nil {
		return fail("process and child_runbook are mutually exclusive")
	}

	if cr := a.ChildRunbook; cr != nil {
		if a.Inputs == nil {
			return fail("child_runbook requires inputs")
		}
		if a.Source != nil {
			return fail("child_runbook forbids source")
		}
		if cr.Path == "" {
			return fail("child_runbook.path is required")
		}
		hasOutput := cr.Output != ""
		hasMapping := len(cr.OutputMapping) > 0
		if hasOutput == hasMapping {
			return fail("child_runbook requires exactly one of output or output_mapping")
		}
	} else if a.Inputs != nil && len(a.Inputs) == 0 {
		return fail("inputs must list at least one artifact")
	}

	if a.Merge != "" && a.Merge != MergeConcatenate {
		return fail(fmt.Sprintf("unsupported merge strategy %q", a.Merge))
	}
	if a.OutputSchema != "" {
		if _, err := types.ParseSchemaRef(a.OutputSchema); err != nil {
			return fail(fmt.Sprintf("output_schema: %v", err))
		}
	}

	return nil
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
