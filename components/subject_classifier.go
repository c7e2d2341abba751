package components

import (
	"context"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/attestor-io/strata/container"
	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/services/llm"
	"github.com/attestor-io/strata/types"
)

// defaultCategories are the data-subject categories used when the
// runbook does not configure its own.
var defaultCategories = []string{"customer", "employee", "supplier", "unknown"}

// defaultMaxFindings caps the findings included in one classification
// prompt.
const defaultMaxFindings = 50

var subjectClassifierConfigSchema = jsonschema.MustCompileString("subject_classifier_config.json", `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"categories": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		},
		"max_findings": {"type": "integer", "minimum": 1}
	}
}`)

type subjectClassifierConfig struct {
	Categories  []string `json:"categories"`
	MaxFindings int      `json:"max_findings"`
}

// SubjectClassifierFactory builds the subject_classifier analyser, which
// asks the LLM service to assign each personal-data finding to a
// data-subject category.
type SubjectClassifierFactory struct {
	Services *container.Container
}

// Info implements registry.AnalyserFactory.
func (f *SubjectClassifierFactory) Info() registry.ComponentInfo {
	return registry.ComponentInfo{
		Name: "subject_classifier",
		Kind: registry.KindAnalyser,
		InputRequirements: [][]types.InputRequirement{
			{{SchemaName: FindingSchema.Name, Version: FindingSchema.Version}},
		},
		OutputSchemas: []types.Schema{SubjectClassificationSchema},
	}
}

// CanCreate implements registry.AnalyserFactory. The analyser needs the
// llm service, so availability follows the container.
func (f *SubjectClassifierFactory) CanCreate(config map[string]any) bool {
	if f.Services == nil {
		return false
	}
	_, ok, err := llm.Resolve(f.Services)
	return ok && err == nil
}

// Create implements registry.AnalyserFactory.
func (f *SubjectClassifierFactory) Create(config map[string]any) (registry.Analyser, error) {
	var cfg subjectClassifierConfig
	if err := decodeConfig(subjectClassifierConfigSchema, config, &cfg); err != nil {
		return nil, fmt.Errorf("subject_classifier analyser: %w", err)
	}
	if f.Services == nil {
		return nil, fmt.Errorf("subject_classifier analyser: no service container")
	}
	client, ok, err := llm.Resolve(f.Services)
	if err != nil {
		return nil, fmt.Errorf("subject_classifier analyser: llm service: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("subject_classifier analyser: llm service unavailable")
	}
	categories := cfg.Categories
	if len(categories) == 0 {
		categories = defaultCategories
	}
	maxFindings := cfg.MaxFindings
	if maxFindings == 0 {
		maxFindings = defaultMaxFindings
	}
	return &subjectClassifier{
		client:      client,
		categories:  categories,
		maxFindings: maxFindings,
	}, nil
}

type subjectClassifier struct {
	client      llm.Client
	categories  []string
	maxFindings int
}

type classification struct {
	Match      string  `json:"match"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type classifierResponse struct {
	Classifications []classification `json:"classifications"`
}

// Process classifies the input findings. Categories outside the
// configured set are normalised to "unknown"; an empty input skips the
// LLM call entirely.
func (a *subjectClassifier) Process(ctx context.Context, inputs []*types.Message, output types.Schema) (*types.Message, error) {
	findings := make([]any, 0, 16)
	for _, input := range inputs {
		findings = append(findings, records(input.Content)...)
	}
	total := len(findings)
	if len(findings) > a.maxFindings {
		findings = findings[:a.maxFindings]
	}

	results := make([]any, 0, len(findings))
	if len(findings) > 0 {
		resp, err := a.client.Complete(ctx, &llm.Request{
			System: "You classify personal-data findings into data-subject categories. Respond with JSON only, no prose.",
			Prompt: a.buildPrompt(findings),
		})
		if err != nil {
			return nil, fmt.Errorf("classify findings: %w", err)
		}
		var decoded classifierResponse
		if err := resp.DecodeJSON(&decoded); err != nil {
			return nil, fmt.Errorf("classify findings: %w", err)
		}
		for _, c := range decoded.Classifications {
			results = append(results, map[string]any{
				"match":      c.Match,
				"category":   a.normalise(c.Category),
				"confidence": c.Confidence,
			})
		}
	}

	msg := types.NewMessage(output, map[string]any{
		"records":        results,
		"categories":     asAnyList(a.categories),
		"total_findings": total,
	})
	return &msg, nil
}

func (a *subjectClassifier) buildPrompt(findings []any) string {
	var b strings.Builder
	b.WriteString("Categories: ")
	b.WriteString(strings.Join(a.categories, ", "))
	b.WriteString(".\n\nFindings:\n")
	for _, f := range findings {
		fields, ok := f.(map[string]any)
		if !ok {
			continue
		}
		rule, _ := fields["rule"].(string)
		match, _ := fields["match"].(string)
		path, _ := fields["path"].(string)
		fmt.Fprintf(&b, "- rule=%s match=%q", rule, match)
		if path != "" {
			fmt.Fprintf(&b, " path=%q", path)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAssign every finding to one category. Respond as ")
	b.WriteString(`{"classifications":[{"match":"...","category":"...","confidence":0.0}]}`)
	b.WriteString(" with confidence between 0 and 1.")
	return b.String()
}

func (a *subjectClassifier) normalise(category string) string {
	for _, allowed := range a.categories {
		if strings.EqualFold(category, allowed) {
			return allowed
		}
	}
	return "unknown"
}

func asAnyList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Verify SubjectClassifierFactory implements registry.AnalyserFactory.
var _ registry.AnalyserFactory = (*SubjectClassifierFactory)(nil)
