package runbook

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Parse reads, expands, decodes, and validates a runbook file.
//
// The decode is strict: unknown fields are rejected so that typos in
// runbook files surface at plan time instead of silently changing
// behaviour.
func Parse(path string) (*Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("runbook file not found: %s", path)
		}
		return nil, fmt.Errorf("read runbook %s: %w", path, err)
	}
	return ParseBytes(path, data)
}

// ParseBytes parses runbook YAML already in memory. The path is used for
// error reporting only.
func ParseBytes(path string, data []byte) (*Runbook, error) {
	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)

	var rb Runbook
	if err := dec.Decode(&rb); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	if err := rb.Validate(); err != nil {
		return nil, err
	}
	return &rb, nil
}

// HashFile computes the blake3 digest of the raw runbook file bytes,
// hex-encoded. Resume uses this to detect runbook edits between runs.
// Child runbook files are not folded in; an edit to a child alone is
// not detected.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read runbook %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
