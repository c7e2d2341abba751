package runbook

import (
	"fmt"
	"strings"
)

// ParseError reports malformed YAML. The wrapped yaml.v3 error carries
// the offending line number in its message.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingEnvVarError reports ${VAR} references whose variables are not
// present in the process environment. Names is sorted and de-duplicated.
type MissingEnvVarError struct {
	Names []string
}

func (e *MissingEnvVarError) Error() string {
	return fmt.Sprintf("missing environment variables: %s", strings.Join(e.Names, ", "))
}

// SchemaError reports a structural invariant violation in an otherwise
// well-formed runbook document.
type SchemaError struct {
	Runbook  string // runbook name, or path when the name itself is invalid
	Artifact string // offending artifact id, empty for top-level violations
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("runbook %q: artifact %q: %s", e.Runbook, e.Artifact, e.Reason)
	}
	return fmt.Sprintf("runbook %q: %s", e.Runbook, e.Reason)
}
