// Package policy decides who gets notified about a risk assessment.
package policy

import "github.com/kiranshivaraju/mindalert/pkg/models"

// Decide returns the alerts to create. It has no side effects and its
// output depends only on its arguments. Intents for several recipients are
// ordered emergency contact first. Intents carry no audio or submission
// references; the caller attaches those.
//
// When Warranted is true but Decide returns nothing, no recipient is
// configured and callers record a configuration gap.
func Decide(uc models.UserContext, ra models.RiskAssessment, trigger models.Trigger) []models.AlertIntent {
	if !Warranted(ra, trigger) {
		return nil
	}
	switch ra.RiskLevel {
	case models.RiskCritical:
		return build(uc, ra, trigger, models.AlertCriticalRisk, models.UrgencyImmediate, bothRecipients(uc))

	case models.RiskHigh:
		return build(uc, ra, trigger, triggerAlertType(trigger), models.UrgencyHigh, primaryRecipient(uc))
	default:
		// Onboarding runs and degraded audio runs always notify someone.
		return build(uc, ra, trigger, triggerAlertType(trigger), ra.UrgencyLevel, primaryRecipient(uc))
	}
}

// Warranted reports whether the assessment calls for at least one alert.
func Warranted(ra models.RiskAssessment, trigger models.Trigger) bool {
	switch {
	case ra.RiskLevel == models.RiskCritical, ra.RiskLevel == models.RiskHigh:
		return true
	case trigger.Type == models.TriggerOnboarding, trigger.Degraded:
		return true
	default:
		return false
	}
}

type recipient struct {
	email string
	kind  models.RecipientType
}

func bothRecipients(uc models.UserContext) []recipient {
	var out []recipient
	if uc.EmergencyContactEmail != "" {
		out = append(out, recipient{uc.EmergencyContactEmail, models.RecipientEmergencyContact})
	}
	if uc.CarePersonEmail != "" {
		out = append(out, recipient{uc.CarePersonEmail, models.RecipientCarePerson})
	}
	return out
}

// primaryRecipient is the care person, or the emergency contact when no care person is set.
func primaryRecipient(uc models.UserContext) []recipient {
	switch {
	case uc.CarePersonEmail != "":
		return []recipient{{uc.CarePersonEmail, models.RecipientCarePerson}}
	case uc.EmergencyContactEmail != "":
		return []recipient{{uc.EmergencyContactEmail, models.RecipientEmergencyContact}}
	default:
		return nil
	}
}

func triggerAlertType(trigger models.Trigger) models.AlertType {
	if trigger.Type == models.TriggerOnboarding {
		return models.AlertOnboardingAnalysis
	}
	return models.AlertImmediateVoice
}

func build(uc models.UserContext, ra models.RiskAssessment, trigger models.Trigger,
	alertType models.AlertType, urgency models.UrgencyLevel, recipients []recipient) []models.AlertIntent {
	if len(recipients) == 0 {
		return nil
	}
	intents := make([]models.AlertIntent, 0, len(recipients))
	for _, r := range recipients {
		risk := ra.RiskLevel
		u := urgency
		intents = append(intents, models.AlertIntent{
			UserID:          uc.UserID,
			Type:            alertType,
			RecipientEmail:  r.email,
			RecipientType:   r.kind,
			UserDisplayName: uc.DisplayName,
			RiskLevel:       &risk,
			UrgencyLevel:    &u,
			Assessment:      ra,
			Degraded:        trigger.Degraded,
		})
	}
	return intents
}
