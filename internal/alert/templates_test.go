package alert

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/mindalert/pkg/models"
)

func TestRender_AllTypesHaveTemplates(t *testing.T) {
	for _, typ := range models.AlertTypes {
		t.Run(string(typ), func(t *testing.T) {
			intent := highRiskIntent(uuid.New())
			intent.Type = typ

			subject, body, err := render(intent)
			require.NoError(t, err)
			assert.NotEmpty(t, subject)
			assert.Contains(t, body, "Sam")
		})
	}
}

func TestRender_CriticalRisk(t *testing.T) {
	intent := highRiskIntent(uuid.New())
	intent.Type = models.AlertCriticalRisk
	intent.RecipientType = models.RecipientEmergencyContact
	risk := models.RiskCritical
	urgency := models.UrgencyImmediate
	intent.RiskLevel = &risk
	intent.UrgencyLevel = &urgency

	subject, body, err := render(intent)
	require.NoError(t, err)
	assert.Equal(t, "URGENT: Sam may need help right now", subject)
	assert.Contains(t, body, "CRITICAL risk")
	assert.Contains(t, body, "immediate urgency")
	assert.Contains(t, body, "emergency contact")
	assert.Contains(t, body, "  - hopelessness: present\n  - sleep: severe disruption")
}

func TestRender_DegradedWithoutTranscript(t *testing.T) {
	intent := models.AlertIntent{
		UserID:          uuid.New(),
		Type:            models.AlertImmediateVoice,
		RecipientEmail:  "care@example.com",
		RecipientType:   models.RecipientCarePerson,
		UserDisplayName: "Sam",
		Assessment:      models.DefaultAssessment(models.SourceAudio),
		Degraded:        true,
	}

	subject, body, err := render(intent)
	require.NoError(t, err)
	assert.Equal(t, "Medium urgency: please check in with Sam", subject)
	assert.Contains(t, body, "could not be completed")
	assert.NotContains(t, body, "From the recording")
}

func TestRender_MissingDisplayName(t *testing.T) {
	intent := highRiskIntent(uuid.New())
	intent.UserDisplayName = ""

	subject, _, err := render(intent)
	require.NoError(t, err)
	assert.Contains(t, subject, "A person you support")
}
