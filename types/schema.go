// Package types defines core domain types for the Strata engine.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"sort"
	"strings"
)

// Schema identifies a data shape by name and version.
// Two schemas are compatible iff both fields are character-identical;
// the engine never inspects message content against a schema definition.
type Schema struct {
	Name    string `msgpack:"name" json:"name"`
	Version string `msgpack:"version" json:"version"`
}

// Ref returns the textual "name/version" form used in runbooks.
func (s Schema) Ref() string {
	return s.Name + "/" + s.Version
}

// Compatible reports whether s and other are the same schema.
func (s Schema) Compatible(other Schema) bool {
	return s.Name == other.Name && s.Version == other.Version
}

// ParseSchemaRef parses a "name/version" reference into a Schema.
// The version is everything after the first slash, so schema names
// must not contain slashes.
func ParseSchemaRef(ref string) (Schema, error) {
	name, version, ok := strings.Cut(ref, "/")
	if !ok || name == "" || version == "" {
		return Schema{}, fmt.Errorf("invalid schema reference %q: want \"name/version\"", ref)
	}
	return Schema{Name: name, Version: version}, nil
}

// InputRequirement names one schema an analyser accepts on an input slot.
// Requirements are compared as sets; multiplicity of upstream artifacts
// with the same schema does not matter.
type InputRequirement struct {
	SchemaName string `json:"schema_name"`
	Version    string `json:"version"`
}

// Schema returns the requirement as a Schema value.
func (r InputRequirement) Schema() Schema {
	return Schema{Name: r.SchemaName, Version: r.Version}
}

// SchemaSet is a set of schemas keyed by "name/version".
// Used for exact-set matching of analyser input requirements.
type SchemaSet map[string]Schema

// NewSchemaSet builds a set from the given schemas.
func NewSchemaSet(schemas ...Schema) SchemaSet {
	set := make(SchemaSet, len(schemas))
	for _, s := range schemas {
		set[s.Ref()] = s
	}
	return set
}

// RequirementSet builds a set from one accepted requirement combination.
func RequirementSet(reqs []InputRequirement) SchemaSet {
	set := make(SchemaSet, len(reqs))
	for _, r := range reqs {
		s := r.Schema()
		set[s.Ref()] = s
	}
	return set
}

// Equal reports whether both sets contain exactly the same schemas.
func (s SchemaSet) Equal(other SchemaSet) bool {
	if len(s) != len(other) {
		return false
	}
	for ref := range s {
		if _, ok := other[ref]; !ok {
			return false
		}
	}
	return true
}

// Refs returns the sorted "name/version" members, for error messages.
func (s SchemaSet) Refs() []string {
	refs := make([]string, 0, len(s))
	for ref := range s {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// String renders the set as "{a/1, b/2}".
func (s SchemaSet) String() string {
	return "{" + strings.Join(s.Refs(), ", ") + "}"
}
