package alert

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// emailData is what the subject and body templates render against.
type emailData struct {
	DisplayName   string
	RecipientType models.RecipientType
	RiskLevel     string
	UrgencyLevel  string
	Indicators    []indicator
	Transcription string
	Confidence    int
	HasConfidence bool
	Degraded      bool
	Source        models.AnalysisSource
}

type indicator struct {
	Name  string
	Value string
}

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"humanize": func(s string) string { return strings.ReplaceAll(s, "_", " ") },
}

const footer = `
{{- if .Degraded}}

Note: part of the automated analysis could not be completed, so this
assessment is conservative. Please check in directly.
{{- end}}

You are receiving this because {{.DisplayName}} listed you as their
{{humanize (printf "%s" .RecipientType)}}. If you believe someone is in
immediate danger, contact local emergency services.
`

const indicatorBlock = `
{{- if .Indicators}}

What we noticed:
{{- range .Indicators}}
  - {{humanize .Name}}: {{.Value}}
{{- end}}
{{- end}}`

var templates = map[models.AlertType]emailTemplate{
	models.AlertCriticalRisk: mustTemplate(
		`URGENT: {{.DisplayName}} may need help right now`,
		`{{.DisplayName}}'s latest check-in was assessed as {{upper .RiskLevel}} risk
with {{.UrgencyLevel}} urgency.

Please reach out to {{.DisplayName}} as soon as possible.`+indicatorBlock+transcriptBlock+footer),

	models.AlertImmediateVoice: mustTemplate(
		`{{title .UrgencyLevel}} urgency: please check in with {{.DisplayName}}`,
		`{{.DisplayName}} recorded a voice check-in that was assessed as {{.RiskLevel}} risk
with {{.UrgencyLevel}} urgency.`+indicatorBlock+transcriptBlock+footer),

	models.AlertOnboardingAnalysis: mustTemplate(
		`Wellbeing update for {{.DisplayName}}`,
		`{{.DisplayName}} completed their onboarding questionnaire. The analysis
suggests {{.RiskLevel}} risk with {{.UrgencyLevel}} urgency.`+indicatorBlock+footer),

	models.AlertDailySummary: mustTemplate(
		`Daily summary for {{.DisplayName}}`,
		`Here is today's summary for {{.DisplayName}}: {{.RiskLevel}} risk,
{{.UrgencyLevel}} urgency.`+indicatorBlock+footer),
}

const transcriptBlock = `
{{- if .Transcription}}

From the recording{{if .HasConfidence}} (transcription confidence {{.Confidence}}%){{end}}:
  "{{.Transcription}}"
{{- end}}`

func mustTemplate(subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New("subject").Funcs(funcs).Parse(subject)),
		body:    template.Must(template.New("body").Funcs(funcs).Parse(body)),
	}
}

// render produces the subject and body for an intent.
func render(intent models.AlertIntent) (string, string, error) {
	tmpl, ok := templates[intent.Type]
	if !ok {
		return "", "", fmt.Errorf("no template for alert type %q", intent.Type)
	}

	data := emailData{
		DisplayName:   intent.UserDisplayName,
		RecipientType: intent.RecipientType,
		RiskLevel:     string(intent.Assessment.RiskLevel),
		UrgencyLevel:  string(intent.Assessment.UrgencyLevel),
		Degraded:      intent.Degraded,
		Source:        intent.Assessment.Source,
	}
	if data.DisplayName == "" {
		data.DisplayName = "A person you support"
	}
	if intent.RiskLevel != nil {
		data.RiskLevel = string(*intent.RiskLevel)
	}
	if intent.UrgencyLevel != nil {
		data.UrgencyLevel = string(*intent.UrgencyLevel)
	}
	if intent.Transcription != nil {
		data.Transcription = strings.TrimSpace(*intent.Transcription)
	}
	if intent.TranscriptionConfidence != nil {
		data.Confidence = *intent.TranscriptionConfidence
		data.HasConfidence = true
	}
	for name, value := range intent.Assessment.Indicators {
		data.Indicators = append(data.Indicators, indicator{Name: name, Value: value})
	}
	sort.Slice(data.Indicators, func(i, j int) bool { return data.Indicators[i].Name < data.Indicators[j].Name })

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("rendering subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("rendering body: %w", err)
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()) + "\n", nil
}
