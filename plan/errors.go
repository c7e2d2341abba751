package plan

import (
	"fmt"
	"strings"

	"github.com/attestor-io/strata/types"
)

// CycleError reports a dependency cycle among artifacts.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("artifact dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// MissingArtifactError reports a reference to an artifact id that does
// not exist in the flattened plan.
type MissingArtifactError struct {
	ID       string
	Referrer string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("artifact %q referenced by %q is not defined", e.ID, e.Referrer)
}

// ComponentNotFoundError reports a runbook type name with no registered
// factory.
type ComponentNotFoundError struct {
	Kind     string // "connector" or "analyser"
	Type     string
	Artifact string
}

func (e *ComponentNotFoundError) Error() string {
	return fmt.Sprintf("artifact %q: no %s registered for type %q", e.Artifact, e.Kind, e.Type)
}

// SchemaCompatibilityError reports that the schemas provided to an
// artifact match none of the accepted combinations.
type SchemaCompatibilityError struct {
	Artifact  string
	Component string // analyser type, empty for pass-through and binding checks
	Provided  types.SchemaSet
	Available []types.SchemaSet
	Reason    string // set when neither Component nor Available applies
}

func (e *SchemaCompatibilityError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("artifact %q: %s (provided %s)", e.Artifact, e.Reason, e.Provided)
	}
	combos := make([]string, 0, len(e.Available))
	for _, set := range e.Available {
		combos = append(combos, set.String())
	}
	return fmt.Sprintf("artifact %q: analyser %q accepts none of the provided schemas: provided %s, accepts %s",
		e.Artifact, e.Component, e.Provided, strings.Join(combos, " or "))
}

// InvalidPathError reports a child runbook path that violates the path
// rules (absolute, or containing a ".." segment).
type InvalidPathError struct {
	Artifact string
	Path     string
	Reason   string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("artifact %q: invalid child runbook path %q: %s", e.Artifact, e.Path, e.Reason)
}

// ChildRunbookNotFoundError reports a child runbook path that resolved
// to no existing file.
type ChildRunbookNotFoundError struct {
	Artifact string
	Path     string
	Searched []string
}

func (e *ChildRunbookNotFoundError) Error() string {
	return fmt.Sprintf("artifact %q: child runbook %q not found (searched %s)",
		e.Artifact, e.Path, strings.Join(e.Searched, ", "))
}

// CircularRunbookError reports a child runbook inclusion cycle.
type CircularRunbookError struct {
	Chain []string
}

func (e *CircularRunbookError) Error() string {
	return fmt.Sprintf("circular child runbook inclusion: %s", strings.Join(e.Chain, " -> "))
}

// UnboundInputError reports an artifact left with no inputs after
// flattening because every reference it held resolved to an unbound
// optional input without a default.
type UnboundInputError struct {
	Artifact string
	Runbook  string
	Inputs   []string // the unbound optional input names
}

func (e *UnboundInputError) Error() string {
	return fmt.Sprintf("artifact %q in runbook %q has no inputs: optional inputs %s are unbound and declare no default",
		e.Artifact, e.Runbook, strings.Join(e.Inputs, ", "))
}

// MissingInputMappingError reports an input_mapping that does not line
// up with the child runbook's declared inputs.
type MissingInputMappingError struct {
	Artifact string
	Path     string
	Missing  []string // required child inputs with no mapping
	Unknown  []string // mapped names the child does not declare
}

func (e *MissingInputMappingError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("unmapped required inputs: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, fmt.Sprintf("unknown inputs: %s", strings.Join(e.Unknown, ", ")))
	}
	return fmt.Sprintf("artifact %q: input_mapping for %q invalid: %s", e.Artifact, e.Path, strings.Join(parts, "; "))
}
