package components

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/types"
)

// builtinRules are the personal-data patterns every pattern_scan
// instance carries. The phone rule wants nine or more digits so
// timestamps and short ids stay out of the findings.
var builtinRules = map[string]*regexp.Regexp{
	"email": regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	"phone": regexp.MustCompile(`\+?\d(?:[\s.-]?\d){8,}`),
	"iban":  regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
}

var patternScanConfigSchema = jsonschema.MustCompileString("pattern_scan_config.json", `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"extra_patterns": {
			"type": "object",
			"additionalProperties": {"type": "string", "minLength": 1}
		}
	}
}`)

type patternScanConfig struct {
	ExtraPatterns map[string]string `json:"extra_patterns"`
}

// PatternScanFactory builds the pattern_scan analyser: a regex scan for
// personal data over file inventories.
type PatternScanFactory struct{}

// Info implements registry.AnalyserFactory.
func (f *PatternScanFactory) Info() registry.ComponentInfo {
	return registry.ComponentInfo{
		Name: "pattern_scan",
		Kind: registry.KindAnalyser,
		InputRequirements: [][]types.InputRequirement{
			{{SchemaName: StandardInputSchema.Name, Version: StandardInputSchema.Version}},
		},
		OutputSchemas: []types.Schema{FindingSchema},
	}
}

// CanCreate implements registry.AnalyserFactory.
func (f *PatternScanFactory) CanCreate(config map[string]any) bool { return true }

// Create implements registry.AnalyserFactory. Extra patterns override a
// builtin rule of the same name.
func (f *PatternScanFactory) Create(config map[string]any) (registry.Analyser, error) {
	var cfg patternScanConfig
	if err := decodeConfig(patternScanConfigSchema, config, &cfg); err != nil {
		return nil, fmt.Errorf("pattern_scan analyser: %w", err)
	}
	rules := make(map[string]*regexp.Regexp, len(builtinRules)+len(cfg.ExtraPatterns))
	for name, re := range builtinRules {
		rules[name] = re
	}
	for name, pattern := range cfg.ExtraPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern_scan analyser: pattern %q: %w", name, err)
		}
		rules[name] = re
	}
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return &patternScan{rules: rules, ruleNames: names}, nil
}

type patternScan struct {
	rules     map[string]*regexp.Regexp
	ruleNames []string
}

// Process scans every string field of every input record and emits one
// finding per match: rule name, matched text, field name, and the
// record's path when it has one. Ordering is deterministic: inputs in
// declaration order, records in order, fields and rules sorted by name.
func (a *patternScan) Process(ctx context.Context, inputs []*types.Message, output types.Schema) (*types.Message, error) {
	findings := make([]any, 0, 16)
	scanned := 0
	for _, input := range inputs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, rec := range records(input.Content) {
			fields, ok := rec.(map[string]any)
			if !ok {
				continue
			}
			scanned++
			path, _ := fields["path"].(string)
			for _, field := range sortedFieldNames(fields) {
				text, ok := fields[field].(string)
				if !ok {
					continue
				}
				for _, rule := range a.ruleNames {
					for _, match := range a.rules[rule].FindAllString(text, -1) {
						finding := map[string]any{
							"rule":  rule,
							"match": match,
							"field": field,
						}
						if path != "" {
							finding["path"] = path
						}
						findings = append(findings, finding)
					}
				}
			}
		}
	}
	msg := types.NewMessage(output, map[string]any{
		"records": findings,
		"scanned": scanned,
	})
	return &msg, nil
}

func sortedFieldNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify PatternScanFactory implements registry.AnalyserFactory.
var _ registry.AnalyserFactory = (*PatternScanFactory)(nil)
