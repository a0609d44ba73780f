package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const systemPrompt = `You assess mental-health risk for a care-team notification service.
Reply with a single JSON object and nothing else:
{"risk_level": "low|medium|high|critical", "urgency_level": "low|medium|high|immediate", "indicators": {"<category>": "<short evidence>"}}
Use "critical" only for explicit intent or plan of self-harm. Indicators may be an empty object.`

// buildRequest renders the prompt for in. The output depends only on in,
// so identical inputs always produce identical prompts.
func buildRequest(in models.AnalysisInput) (models.CompletionRequest, error) {
	var b strings.Builder
	switch in.Source {
	case models.SourceAudio:
		b.WriteString("Source: transcript of a voice note recorded by the user.\n\nTranscript:\n")
		if t := strings.TrimSpace(in.Transcript); t != "" {
			b.WriteString(t)
		} else {
			b.WriteString("(no speech detected)")
		}
	case models.SourceQuestionnaireFallback:
		if len(in.Answers) == 0 {
			return models.CompletionRequest{}, fmt.Errorf("%w: no questionnaire answers", ErrEmptyInput)
		}
		b.WriteString("Source: the user's onboarding questionnaire answers.\n\nAnswers:\n")
		keys := make([]string, 0, len(in.Answers))
		for k := range in.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, in.Answers[k])
		}
	default:
		return models.CompletionRequest{}, fmt.Errorf("unknown analysis source %q", in.Source)
	}
	return models.CompletionRequest{System: systemPrompt, Prompt: b.String()}, nil
}
