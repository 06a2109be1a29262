package generation

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// PromptData is the input to the prompt templates.
type PromptData struct {
	Goal      string
	Source    string
	BrainDump string
}

// FeedbackPrompt asks for feedback on a learner's brain-dump.
func FeedbackPrompt(data PromptData) (string, error) {
	return render("feedback.tmpl", data)
}

// ExpertSummaryPrompt asks for an expert summary of the learner's goal.
func ExpertSummaryPrompt(data PromptData) (string, error) {
	return render("expert_summary.tmpl", data)
}

func render(name string, data PromptData) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
