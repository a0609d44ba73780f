package policy_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/mindalert/internal/policy"
	"github.com/kiranshivaraju/mindalert/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	liveAudio     = models.Trigger{Type: models.TriggerLiveAudio}
	degradedAudio = models.Trigger{Type: models.TriggerLiveAudio, Degraded: true}
	onboarding    = models.Trigger{Type: models.TriggerOnboarding}
)

func user(care, emergency string) models.UserContext {
	return models.UserContext{
		UserID:                uuid.MustParse("6f1c2a8e-1d4b-4c39-9a51-0f7e2b3c4d5e"),
		DisplayName:           "Sam",
		CarePersonEmail:       care,
		EmergencyContactEmail: emergency,
	}
}

func assessment(risk models.RiskLevel, urgency models.UrgencyLevel) models.RiskAssessment {
	return models.RiskAssessment{
		RiskLevel:    risk,
		UrgencyLevel: urgency,
		Indicators:   map[string]string{"mood": "low"},
		Source:       models.SourceAudio,
	}
}

func TestDecide_CriticalNotifiesBoth(t *testing.T) {
	intents := policy.Decide(user("care@x.org", "sos@x.org"), assessment(models.RiskCritical, models.UrgencyHigh), liveAudio)

	require.Len(t, intents, 2)
	assert.Equal(t, models.RecipientEmergencyContact, intents[0].RecipientType)
	assert.Equal(t, "sos@x.org", intents[0].RecipientEmail)
	assert.Equal(t, models.RecipientCarePerson, intents[1].RecipientType)
	for _, in := range intents {
		assert.Equal(t, models.AlertCriticalRisk, in.Type)
		require.NotNil(t, in.UrgencyLevel)
		assert.Equal(t, models.UrgencyImmediate, *in.UrgencyLevel)
		assert.Equal(t, models.RiskCritical, *in.RiskLevel)
	}
}

func TestDecide_CriticalWithOneRecipient(t *testing.T) {
	intents := policy.Decide(user("", "sos@x.org"), assessment(models.RiskCritical, models.UrgencyImmediate), liveAudio)
	require.Len(t, intents, 1)
	assert.Equal(t, models.RecipientEmergencyContact, intents[0].RecipientType)
}

func TestDecide_HighNotifiesCarePerson(t *testing.T) {
	intents := policy.Decide(user("care@x.org", "sos@x.org"), assessment(models.RiskHigh, models.UrgencyMedium), liveAudio)

	require.Len(t, intents, 1)
	assert.Equal(t, models.RecipientCarePerson, intents[0].RecipientType)
	assert.Equal(t, models.AlertImmediateVoice, intents[0].Type)
	assert.Equal(t, models.UrgencyHigh, *intents[0].UrgencyLevel)
}

func TestDecide_HighFallsBackToEmergencyContact(t *testing.T) {
	intents := policy.Decide(user("", "sos@x.org"), assessment(models.RiskHigh, models.UrgencyHigh), liveAudio)

	require.Len(t, intents, 1)
	assert.Equal(t, models.RecipientEmergencyContact, intents[0].RecipientType)
}

func TestDecide_HighOnboardingUsesOnboardingType(t *testing.T) {
	intents := policy.Decide(user("care@x.org", ""), assessment(models.RiskHigh, models.UrgencyHigh), onboarding)

	require.Len(t, intents, 1)
	assert.Equal(t, models.AlertOnboardingAnalysis, intents[0].Type)
}

func TestDecide_LowAndMediumLiveAudioAreSilent(t *testing.T) {
	for _, risk := range []models.RiskLevel{models.RiskLow, models.RiskMedium} {
		t.Run(string(risk), func(t *testing.T) {
			ra := assessment(risk, models.UrgencyLow)
			assert.Empty(t, policy.Decide(user("care@x.org", "sos@x.org"), ra, liveAudio))
			assert.False(t, policy.Warranted(ra, liveAudio))
		})
	}
}

func TestDecide_OnboardingAlwaysNotifies(t *testing.T) {
	intents := policy.Decide(user("care@x.org", "sos@x.org"), assessment(models.RiskLow, models.UrgencyLow), onboarding)

	require.Len(t, intents, 1)
	assert.Equal(t, models.AlertOnboardingAnalysis, intents[0].Type)
	assert.Equal(t, models.RecipientCarePerson, intents[0].RecipientType)
	assert.Equal(t, models.UrgencyLow, *intents[0].UrgencyLevel)
}

func TestDecide_DegradedAudioAlwaysNotifies(t *testing.T) {
	ra := models.DefaultAssessment(models.SourceAudio)
	intents := policy.Decide(user("", "sos@x.org"), ra, degradedAudio)

	require.Len(t, intents, 1)
	assert.Equal(t, models.AlertImmediateVoice, intents[0].Type)
	assert.Equal(t, models.RecipientEmergencyContact, intents[0].RecipientType)
	assert.True(t, intents[0].Degraded)
	assert.Equal(t, "analysis unavailable", intents[0].Assessment.Indicators["analysis"])
}

func TestDecide_NoRecipients(t *testing.T) {
	for _, ra := range []models.RiskAssessment{
		assessment(models.RiskCritical, models.UrgencyImmediate),
		assessment(models.RiskHigh, models.UrgencyHigh),
		models.DefaultAssessment(models.SourceAudio),
	} {
		intents := policy.Decide(user("", ""), ra, degradedAudio)
		assert.Empty(t, intents)
		assert.True(t, policy.Warranted(ra, degradedAudio), "an empty result here is a configuration gap")
	}
}

func TestDecide_Deterministic(t *testing.T) {
	uc := user("care@x.org", "sos@x.org")
	cases := []struct {
		ra      models.RiskAssessment
		trigger models.Trigger
	}{
		{assessment(models.RiskCritical, models.UrgencyHigh), liveAudio},
		{assessment(models.RiskHigh, models.UrgencyHigh), onboarding},
		{assessment(models.RiskLow, models.UrgencyLow), degradedAudio},
		{assessment(models.RiskMedium, models.UrgencyMedium), liveAudio},
	}
	for _, c := range cases {
		assert.Equal(t, policy.Decide(uc, c.ra, c.trigger), policy.Decide(uc, c.ra, c.trigger))
	}
}

func TestDecide_IntentsCarryUserAndAssessment(t *testing.T) {
	uc := user("care@x.org", "")
	ra := assessment(models.RiskHigh, models.UrgencyHigh)

	intents := policy.Decide(uc, ra, liveAudio)
	require.Len(t, intents, 1)
	assert.Equal(t, uc.UserID, intents[0].UserID)
	assert.Equal(t, "Sam", intents[0].UserDisplayName)
	assert.Equal(t, ra, intents[0].Assessment)
}
