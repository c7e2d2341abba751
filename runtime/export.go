package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/attestor-io/strata/store"
)

// RedactedPlaceholder replaces exported content that was produced from
// a sensitive-marked input.
const RedactedPlaceholder = "[REDACTED]"

// exportedMessage is the JSON shape of one exported artifact.
type exportedMessage struct {
	ID       string `json:"id"`
	Artifact string `json:"artifact"`
	Alias    string `json:"alias,omitempty"`
	Origin   string `json:"origin"`
	Schema   string `json:"schema"`
	Content  any    `json:"content"`
}

// ExportOutputs writes every completed artifact marked output: true to
// <dir>/<alias-or-id>.json and returns the written paths. Content bound
// to a sensitive input is replaced by the redaction placeholder.
func ExportOutputs(ctx context.Context, st store.Store, result *ExecutionResult, dir string) ([]string, error) {
	outputs := result.Outputs()
	if len(outputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, 0, len(outputs))
	for _, ar := range outputs {
		msg, err := st.Get(ctx, result.RunID, ar.ID)
		if err != nil {
			return paths, fmt.Errorf("export %q: %w", ar.ID, err)
		}
		exported := exportedMessage{
			ID:       msg.ID,
			Artifact: ar.ID,
			Alias:    ar.Alias,
			Origin:   ar.Origin,
			Schema:   msg.Schema.Ref(),
			Content:  msg.Content,
		}
		if ar.Redacted {
			exported.Content = RedactedPlaceholder
		}
		data, err := json.MarshalIndent(exported, "", "  ")
		if err != nil {
			return paths, fmt.Errorf("export %q: %w", ar.ID, err)
		}
		data = append(data, '\n')

		name := ar.ID
		if ar.Alias != "" {
			name = ar.Alias
		}
		path := filepath.Join(dir, url.PathEscape(name)+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("export %q: %w", ar.ID, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
