package components

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/types"
)

var fsConfigSchema = jsonschema.MustCompileString("fs_config.json", `{
	"type": "object",
	"required": ["root"],
	"additionalProperties": false,
	"properties": {
		"root": {"type": "string", "minLength": 1},
		"include": {"type": "array", "items": {"type": "string"}},
		"exclude": {"type": "array", "items": {"type": "string"}},
		"max_files": {"type": "integer", "minimum": 1},
		"sample_bytes": {"type": "integer", "minimum": 0}
	}
}`)

type fsConfig struct {
	Root        string   `json:"root"`
	Include     []string `json:"include"`
	Exclude     []string `json:"exclude"`
	MaxFiles    int      `json:"max_files"`
	SampleBytes int      `json:"sample_bytes"`
}

// FSConnectorFactory builds the fs connector: a directory walk producing
// a file inventory with schema standard_input/1.0.0.
type FSConnectorFactory struct{}

// Info implements registry.ConnectorFactory.
func (f *FSConnectorFactory) Info() registry.ComponentInfo {
	return registry.ComponentInfo{
		Name:          "fs",
		Kind:          registry.KindConnector,
		OutputSchemas: []types.Schema{StandardInputSchema},
	}
}

// CanCreate implements registry.ConnectorFactory. The fs connector has no
// environment requirements.
func (f *FSConnectorFactory) CanCreate(config map[string]any) bool { return true }

// Create implements registry.ConnectorFactory.
func (f *FSConnectorFactory) Create(config map[string]any) (registry.Connector, error) {
	var cfg fsConfig
	if err := decodeConfig(fsConfigSchema, config, &cfg); err != nil {
		return nil, fmt.Errorf("fs connector: %w", err)
	}
	for _, pattern := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("fs connector: invalid glob pattern %q", pattern)
		}
	}
	return &fsConnector{config: cfg}, nil
}

type fsConnector struct {
	config fsConfig
}

// Extract walks the configured root and emits one record per matching
// file: slash-separated relative path, size, modification time, and an
// optional text snippet capped at sample_bytes.
func (c *fsConnector) Extract(ctx context.Context) (*types.Message, error) {
	list := make([]any, 0, 64)
	err := filepath.WalkDir(c.config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.config.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !c.matches(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		record := map[string]any{
			"path":     rel,
			"size":     info.Size(),
			"modified": info.ModTime().UTC().Format(time.RFC3339),
		}
		if c.config.SampleBytes > 0 {
			if snippet, ok := readSnippet(path, c.config.SampleBytes); ok {
				record["snippet"] = snippet
			}
		}
		list = append(list, record)

		if c.config.MaxFiles > 0 && len(list) >= c.config.MaxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.config.Root, err)
	}

	msg := types.NewMessage(StandardInputSchema, map[string]any{
		"root":    c.config.Root,
		"records": list,
	})
	return &msg, nil
}

// matches applies the include and exclude globs to a relative slash path.
// Patterns were validated at creation, so match errors cannot occur.
func (c *fsConnector) matches(rel string) bool {
	if len(c.config.Include) > 0 {
		included := false
		for _, pattern := range c.config.Include {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range c.config.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}

// readSnippet returns up to limit bytes of the file as text. Binary
// content is omitted rather than mangled.
func readSnippet(path string, limit int) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

// Verify FSConnectorFactory implements registry.ConnectorFactory.
var _ registry.ConnectorFactory = (*FSConnectorFactory)(nil)
