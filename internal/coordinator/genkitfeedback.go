package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// GenkitConfig selects and configures the LLM provider behind
// GenkitFeedback, mirroring the runtime's own provider-switch
// construction: "google", "anthropic", "openai", "openai_compatible".
type GenkitConfig struct {
	Provider string
	Model    string
	APIKey   string

	OpenAICompatibleProvider string
	OpenAICompatibleBaseURL  string
}

// GenkitFeedback implements LLMClient by prompting a genkit-backed model
// for the evaluator and re-planner JSON contracts (§4.4.2, §4.4.3).
type GenkitFeedback struct {
	g         *genkit.Genkit
	modelName string
	ready     bool
}

// NewGenkitFeedback initializes genkit with the configured provider
// plugin. When no API key is available it still returns a usable
// GenkitFeedback whose calls return a deterministic "unparseable"
// response, so the coordinator falls back to its conservative defaults
// rather than blocking on missing credentials.
func NewGenkitFeedback(ctx context.Context, cfg GenkitConfig) *GenkitFeedback {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}
	model := strings.TrimSpace(cfg.Model)

	var g *genkit.Genkit
	ready := false

	switch provider {
	case "anthropic":
		if cfg.APIKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
				APIKey:  cfg.APIKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}))
			if model == "" {
				model = "claude-sonnet-4-5"
			}
			ready = true
		}
	case "openai":
		if cfg.APIKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   cfg.APIKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			if model == "" {
				model = "gpt-4o-mini"
			}
			ready = true
		}
	case "openai_compatible":
		if cfg.APIKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: cfg.OpenAICompatibleProvider,
				APIKey:   cfg.APIKey,
				BaseURL:  cfg.OpenAICompatibleBaseURL,
			}))
			ready = true
		}
	case "google", "":
		if cfg.APIKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
			g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
			if model == "" {
				model = "googleai/gemini-2.5-flash"
			}
			ready = true
		}
	}

	if g == nil {
		g = genkit.Init(ctx)
		slog.Warn("coordinator: no LLM feedback provider configured; evaluator/re-planner calls will no-op", "provider", provider)
	}

	return &GenkitFeedback{g: g, modelName: model, ready: ready}
}

func (f *GenkitFeedback) generate(ctx context.Context, system, prompt string) (string, error) {
	if !f.ready {
		return "", nil
	}
	opts := []ai.GenerateOption{
		ai.WithModelName(f.modelName),
		ai.WithSystem(system),
		ai.WithPrompt(prompt),
	}
	resp, err := genkit.Generate(ctx, f.g, opts...)
	if err != nil {
		return "", fmt.Errorf("coordinator: genkit generate: %w", err)
	}
	return resp.Text(), nil
}

const evaluatorSystemPrompt = `You evaluate the result of one executed task in an automated plan.
Respond with exactly one JSON object, no prose, matching this shape:
{"success": bool, "error": string, "summary": string, "shouldContinue": bool, "recommendation": string, "alternativeCommand": string}
If the task failed because of a wrong command and you can suggest a corrected one, set alternativeCommand; otherwise leave it empty.`

func (f *GenkitFeedback) Evaluate(ctx context.Context, t Task, res TaskResult) (string, error) {
	var status string
	if res.Err != nil {
		status = "error: " + res.Err.Error()
	} else {
		status = "ok"
	}
	prompt := fmt.Sprintf(
		"Task %q (%s)\nCommand/Action: %s %s\nExecution status: %s\nOutput:\n%s",
		t.ID, t.Name, t.Tool, t.Action, status, res.Output,
	)
	return f.generate(ctx, evaluatorSystemPrompt, prompt)
}

const replannerSystemPrompt = `You maintain a plan of dependent tasks for an automated runtime.
Given the tasks completed so far and the tasks still remaining, decide whether the plan should
continue unchanged, or be adjusted. Respond with exactly one JSON object, no prose:
{"continuePlan": bool, "addTasks": [task], "modifyTasks": [task], "removeTasks": [task_id], "reasoning": string}
Each task object has the shape {"id","name","description","dependencies","tool","action","params","command","type"}.
Only propose modifyTasks/removeTasks for ids present in the remaining list; preserve ids on modifyTasks.`

func (f *GenkitFeedback) Replan(ctx context.Context, completed []CompletedTask, remaining []Task) (string, error) {
	var b strings.Builder
	b.WriteString("Completed:\n")
	for _, c := range completed {
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.Task.ID, c.Status, c.Result.Evaluation.Summary)
	}
	b.WriteString("Remaining:\n")
	for _, t := range remaining {
		fmt.Fprintf(&b, "- %s: %s (deps=%v)\n", t.ID, t.Name, t.Dependencies)
	}
	return f.generate(ctx, replannerSystemPrompt, b.String())
}
