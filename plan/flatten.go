package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/attestor-io/strata/runbook"
	"github.com/attestor-io/strata/types"
)

// FlatArtifact is one artifact in the flattened plan. Inputs inside the
// embedded definition are rewritten to post-flatten ids; child_runbook
// directives are absorbed during flattening and never appear here.
type FlatArtifact struct {
	// ID is the post-flatten id, namespaced for child artifacts.
	ID string
	// OriginalID is the id as written in its declaring runbook.
	OriginalID string
	// Definition is the artifact with inputs rewritten. Its ChildRunbook
	// field is always nil.
	Definition runbook.Artifact
	// Origin is types.OriginParent for artifacts declared in the parent
	// runbook, or child:<runbook_name> for flattened child artifacts.
	Origin string
	// Redacted marks content that must appear as [REDACTED] in logs and
	// exported results. Set when the artifact is bound to a sensitive
	// child input.
	Redacted bool
}

// bindingCheck defers an input_mapping schema comparison until the
// planner has resolved the bound artifact's output schema.
type bindingCheck struct {
	ArtifactID string // bound artifact, post-flatten id
	Want       types.Schema
	ChildPath  string
	InputName  string
	Referrer   string // the child_runbook-carrying artifact, post-flatten id
}

type flattenResult struct {
	artifacts map[string]*FlatArtifact
	aliases   map[string]string // visible name -> post-flatten id
	checks    []bindingCheck
}

// flattenEntry is one runbook on the worklist.
type flattenEntry struct {
	rb        *runbook.Runbook
	path      string            // resolved path of the runbook file
	prefix    string            // namespace prefix, empty for the parent
	binding   map[string]string // declared input name -> bound post-flatten id
	ancestors []string          // absolute runbook paths on the inclusion chain
	origin    string
}

// newNamespaceToken returns a short random token for namespacing one
// child invocation. Tokens are rechecked against the plan for
// collisions.
func newNamespaceToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// flatten resolves child_runbook directives iteratively, producing the
// single artifact set the DAG and executor operate on.
func flatten(parent *runbook.Runbook, parentPath string) (*flattenResult, error) {
	absParent, err := filepath.Abs(parentPath)
	if err != nil {
		return nil, fmt.Errorf("resolve runbook path %s: %w", parentPath, err)
	}

	result := &flattenResult{
		artifacts: make(map[string]*FlatArtifact),
		aliases:   make(map[string]string),
	}
	usedTokens := make(map[string]struct{})
	redacted := make(map[string]struct{})

	worklist := []flattenEntry{{
		rb:        parent,
		path:      parentPath,
		prefix:    "",
		binding:   map[string]string{},
		ancestors: []string{absParent},
		origin:    types.OriginParent,
	}}

	for len(worklist) > 0 {
		entry := worklist[0]
		worklist = worklist[1:]

		children, localAliases, err := collectChildren(entry, usedTokens)
		if err != nil {
			return nil, err
		}
		for _, localName := range sortedKeys(localAliases) {
			result.aliases[entry.prefix+localName] = localAliases[localName]
		}

		rewrite := func(ref string) (string, bool) {
			return rewriteRef(entry, localAliases, ref)
		}

		// Bind and enqueue children now that every alias created by this
		// runbook is known; chained children may reference each other's
		// outputs regardless of declaration order.
		for _, child := range children {
			binding := make(map[string]string, len(child.directive.InputMapping))
			for _, inputName := range sortedKeys(child.directive.InputMapping) {
				boundID, ok := rewrite(child.directive.InputMapping[inputName])
				if !ok {
					// The declared input was optional and unbound; there is
					// nothing to pass through.
					continue
				}
				binding[inputName] = boundID

				decl := child.rb.Inputs[inputName]
				want, err := decl.Schema()
				if err != nil {
					return nil, &runbook.SchemaError{Runbook: child.rb.Name, Reason: fmt.Sprintf("input %q: %v", inputName, err)}
				}
				result.checks = append(result.checks, bindingCheck{
					ArtifactID: boundID,
					Want:       want,
					ChildPath:  child.directive.Path,
					InputName:  inputName,
					Referrer:   child.artifactID,
				})
				if decl.Sensitive {
					redacted[boundID] = struct{}{}
				}
			}

			worklist = append(worklist, flattenEntry{
				rb:        child.rb,
				path:      child.resolvedPath,
				prefix:    child.prefix,
				binding:   binding,
				ancestors: append(append([]string{}, entry.ancestors...), child.absPath),
				origin:    types.ChildOrigin(child.rb.Name),
			})
		}

		// Emit regular artifacts with rewritten inputs. Synthetic
		// default-value artifacts appear on demand.
		for _, localID := range entry.rb.ArtifactIDs() {
			def := entry.rb.Artifacts[localID]
			if def.ChildRunbook != nil {
				continue
			}

			if def.Inputs != nil {
				rewritten := make(runbook.StringList, 0, len(def.Inputs))
				var dropped []string
				for _, ref := range def.Inputs {
					id, ok := rewrite(ref)
					if !ok {
						dropped = append(dropped, ref)
						continue
					}
					rewritten = append(rewritten, id)
				}
				if len(rewritten) == 0 && len(dropped) > 0 {
					// Dropping every reference would leave an inputs-method
					// artifact with nothing to consume; the downstream
					// schema error would hide the real cause.
					return nil, &UnboundInputError{
						Artifact: entry.prefix + localID,
						Runbook:  entry.rb.Name,
						Inputs:   dropped,
					}
				}
				def.Inputs = rewritten
			}

			id := entry.prefix + localID
			result.artifacts[id] = &FlatArtifact{
				ID:         id,
				OriginalID: localID,
				Definition: def,
				Origin:     entry.origin,
			}
		}

		// Unbound optional inputs with defaults become synthetic static
		// sources so the default value flows through the graph as data.
		for _, inputName := range sortedKeys(entry.rb.Inputs) {
			decl := entry.rb.Inputs[inputName]
			if _, bound := entry.binding[inputName]; bound {
				continue
			}
			if !decl.Optional {
				// Only reachable when the parent runbook itself declares
				// required inputs; child bindings are validated on enqueue.
				return nil, &MissingInputMappingError{
					Artifact: entry.rb.Name,
					Path:     entry.path,
					Missing:  []string{inputName},
				}
			}
			if decl.Default == nil {
				continue
			}
			id := syntheticInputID(entry.prefix, inputName)
			result.artifacts[id] = &FlatArtifact{
				ID:         id,
				OriginalID: inputName,
				Definition: runbook.Artifact{
					Description: fmt.Sprintf("default value for input %q", inputName),
					Source: &runbook.ComponentConfig{
						Type: "static",
						Properties: map[string]any{
							"records": decl.Default,
							"schema":  decl.InputSchema,
						},
					},
					OutputSchema: decl.InputSchema,
				},
				Origin: entry.origin,
			}
			if decl.Sensitive {
				redacted[id] = struct{}{}
			}
		}
	}

	result.resolveAliasChains()

	for id := range redacted {
		if art, ok := result.artifacts[resolveOnce(result.aliases, id)]; ok {
			art.Redacted = true
		}
	}
	return result, nil
}

// resolveAliasChains flattens alias-to-alias chains. A chain forms when
// a child's declared output is backed by an artifact that itself
// carries a nested child_runbook: the outer alias then points at an
// absorbed id. After this pass every alias target and every rewritten
// input names an artifact that actually exists.
func (r *flattenResult) resolveAliasChains() {
	final := make(map[string]string, len(r.aliases))
	for name := range r.aliases {
		target := r.aliases[name]
		for hops := 0; hops <= len(r.aliases); hops++ {
			next, ok := r.aliases[target]
			if !ok {
				break
			}
			target = next
		}
		final[name] = target
	}
	r.aliases = final

	for _, fa := range r.artifacts {
		for i, ref := range fa.Definition.Inputs {
			fa.Definition.Inputs[i] = resolveOnce(r.aliases, ref)
		}
	}
	for i := range r.checks {
		r.checks[i].ArtifactID = resolveOnce(r.aliases, r.checks[i].ArtifactID)
	}
}

func resolveOnce(aliases map[string]string, id string) string {
	if target, ok := aliases[id]; ok {
		return target
	}
	return id
}

func syntheticInputID(prefix, inputName string) string {
	return prefix + inputName + "__default"
}

// pendingChild carries a parsed child runbook between the alias pass and
// the binding pass.
type pendingChild struct {
	artifactID   string // post-flatten id of the carrying artifact
	directive    *runbook.ChildRunbook
	rb           *runbook.Runbook
	resolvedPath string
	absPath      string
	prefix       string
}

// collectChildren resolves, parses, and structurally validates every
// child_runbook in the entry, and registers the aliases their outputs
// introduce. Binding happens afterwards so aliases are complete.
func collectChildren(entry flattenEntry, usedTokens map[string]struct{}) ([]pendingChild, map[string]string, error) {
	localAliases := make(map[string]string)
	var children []pendingChild

	for _, localID := range entry.rb.ArtifactIDs() {
		def := entry.rb.Artifacts[localID]
		if def.ChildRunbook == nil {
			continue
		}
		directive := def.ChildRunbook
		carryingID := entry.prefix + localID

		resolvedPath, absPath, err := resolveChildPath(carryingID, entry, directive.Path)
		if err != nil {
			return nil, nil, err
		}
		for _, ancestor := range entry.ancestors {
			if ancestor == absPath {
				return nil, nil, &CircularRunbookError{Chain: append(append([]string{}, entry.ancestors...), absPath)}
			}
		}

		child, err := runbook.Parse(resolvedPath)
		if err != nil {
			return nil, nil, err
		}

		if err := validateInputMapping(carryingID, directive, child); err != nil {
			return nil, nil, err
		}

		token := newNamespaceToken()
		for {
			if _, used := usedTokens[token]; !used {
				break
			}
			token = newNamespaceToken()
		}
		usedTokens[token] = struct{}{}
		childPrefix := entry.prefix + child.Name + "__" + token + "__"

		if directive.Output != "" {
			decl, ok := child.Outputs[directive.Output]
			if !ok {
				return nil, nil, &MissingArtifactError{
					ID:       directive.Output,
					Referrer: carryingID,
				}
			}
			localAliases[localID] = childPrefix + decl.Artifact
		} else {
			for _, childOutput := range sortedKeys(directive.OutputMapping) {
				decl, ok := child.Outputs[childOutput]
				if !ok {
					return nil, nil, &MissingArtifactError{
						ID:       childOutput,
						Referrer: carryingID,
					}
				}
				localAliases[directive.OutputMapping[childOutput]] = childPrefix + decl.Artifact
			}
		}

		children = append(children, pendingChild{
			artifactID:   carryingID,
			directive:    directive,
			rb:           child,
			resolvedPath: resolvedPath,
			absPath:      absPath,
			prefix:       childPrefix,
		})
	}

	return children, localAliases, nil
}

// rewriteRef maps a reference written in the entry's runbook onto its
// post-flatten id. The second return is false only for references to
// declared optional inputs that ended up unbound and have no default.
func rewriteRef(entry flattenEntry, localAliases map[string]string, ref string) (string, bool) {
	if bound, ok := entry.binding[ref]; ok {
		return bound, true
	}
	if decl, ok := entry.rb.Inputs[ref]; ok {
		if decl.Default != nil {
			return syntheticInputID(entry.prefix, ref), true
		}
		return "", false
	}
	if target, ok := localAliases[ref]; ok {
		return target, true
	}
	return entry.prefix + ref, true
}

// resolveChildPath applies the path acceptance rules and search order:
// the declaring runbook's directory first, then each template_paths
// entry relative to it.
func resolveChildPath(artifactID string, entry flattenEntry, path string) (string, string, error) {
	if filepath.IsAbs(path) {
		return "", "", &InvalidPathError{Artifact: artifactID, Path: path, Reason: "path must be relative"}
	}
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return "", "", &InvalidPathError{Artifact: artifactID, Path: path, Reason: "path must not contain '..'"}
		}
	}

	baseDir := filepath.Dir(entry.path)
	searchDirs := []string{baseDir}
	for _, tp := range entry.rb.Config.TemplatePaths {
		searchDirs = append(searchDirs, filepath.Join(baseDir, tp))
	}

	searched := make([]string, 0, len(searchDirs))
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, path)
		searched = append(searched, candidate)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			return "", "", fmt.Errorf("resolve child runbook path %s: %w", candidate, err)
		}
		return candidate, abs, nil
	}
	return "", "", &ChildRunbookNotFoundError{Artifact: artifactID, Path: path, Searched: searched}
}

// validateInputMapping enforces the structural half of the mapping
// contract: required child inputs are mapped, mapped names exist.
// Schema equality is checked by the planner once the bound artifacts'
// schemas are resolved.
func validateInputMapping(artifactID string, directive *runbook.ChildRunbook, child *runbook.Runbook) error {
	var missing []string
	for _, name := range child.RequiredInputs() {
		if _, ok := directive.InputMapping[name]; !ok {
			missing = append(missing, name)
		}
	}
	var unknown []string
	for _, name := range sortedKeys(directive.InputMapping) {
		if _, ok := child.Inputs[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		return &MissingInputMappingError{
			Artifact: artifactID,
			Path:     directive.Path,
			Missing:  missing,
			Unknown:  unknown,
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
