package models

import "github.com/google/uuid"

// UserContext is the read-only view of a user that the pipeline needs.
// It is owned by the profile and onboarding services.
type UserContext struct {
	UserID                uuid.UUID         `json:"user_id"`
	DisplayName           string            `json:"display_name"`
	CarePersonEmail       string            `json:"care_person_email,omitempty"`
	EmergencyContactEmail string            `json:"emergency_contact_email,omitempty"`
	OnboardingAnswers     map[string]string `json:"onboarding_answers,omitempty"`
}

// HasRecipients reports whether any notification recipient is configured.
func (u UserContext) HasRecipients() bool {
	return u.CarePersonEmail != "" || u.EmergencyContactEmail != ""
}
