package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/attestor-io/strata/cli/render"
	"github.com/attestor-io/strata/components"
	"github.com/attestor-io/strata/container"
	"github.com/attestor-io/strata/plan"
	"github.com/attestor-io/strata/registry"
	"github.com/attestor-io/strata/services/llm"
)

// PlanResponse is the response for the plan command.
type PlanResponse struct {
	Runbook     string         `json:"runbook"`
	RunbookPath string         `json:"runbook_path"`
	RunbookHash string         `json:"runbook_hash"`
	Artifacts   []PlanArtifact `json:"artifacts"`
}

// PlanArtifact is one resolved artifact in the plan listing.
type PlanArtifact struct {
	ID        string   `json:"id"`
	Schema    string   `json:"schema"`
	DependsOn []string `json:"depends_on,omitempty"`
	Alias     string   `json:"alias,omitempty"`
	Origin    string   `json:"origin"`
	Output    bool     `json:"output,omitempty"`
	Optional  bool     `json:"optional,omitempty"`
}

// PlanCommand returns the plan command.
// Plan validates a runbook and prints the resolved execution plan
// without executing anything.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "Validate a runbook and print its execution plan",
		ArgsUsage: "<runbook.yaml>",
		Flags:     ReadOnlyFlags(),
		Action:    planAction,
	}
}

func planAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("runbook path required", exitInvalidInvocation)
	}
	runbookPath := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for the plan command", exitInvalidInvocation)
	}

	services := container.New()
	llm.Register(services)
	reg := registry.New()
	if err := reg.Install(components.Builtin(services)); err != nil {
		return fmt.Errorf("failed to install builtin components: %w", err)
	}

	p, err := plan.NewPlanner(reg).Plan(runbookPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("plan failed: %v", err), exitPlanError)
	}

	return r.Render(buildPlanResponse(p))
}

func buildPlanResponse(p *plan.ExecutionPlan) *PlanResponse {
	resp := &PlanResponse{
		Runbook:     p.Runbook.Name,
		RunbookPath: p.RunbookPath,
		RunbookHash: p.RunbookHash,
	}

	for _, id := range p.ArtifactIDs() {
		fa := p.Artifacts[id]
		resp.Artifacts = append(resp.Artifacts, PlanArtifact{
			ID:        id,
			Schema:    p.Schemas[id].Output.Ref(),
			DependsOn: p.DAG.Dependencies(id),
			Alias:     p.Alias(id),
			Origin:    fa.Origin,
			Output:    fa.Definition.Output,
			Optional:  fa.Definition.Optional,
		})
	}

	return resp
}
