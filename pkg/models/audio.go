// Package models contains the data types shared across the alert pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioRecord is one uploaded recording. Immutable after creation except
// for SubmissionID, which points at the pipeline run that analyzed it.
type AudioRecord struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	UserID       uuid.UUID  `db:"user_id"       json:"user_id"`
	StoragePath  string     `db:"storage_path"  json:"storage_path"`
	Format       string     `db:"format"        json:"format"`
	DurationSecs *float64   `db:"duration_secs" json:"duration_secs,omitempty"`
	FileSize     int64      `db:"file_size"     json:"file_size"`
	Description  *string    `db:"description"   json:"description,omitempty"`
	MoodRating   *int       `db:"mood_rating"   json:"mood_rating,omitempty"`
	SubmissionID *uuid.UUID `db:"submission_id" json:"submission_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at"    json:"created_at"`
}

// AudioRef is what the transcription stage needs to fetch a recording.
type AudioRef struct {
	AudioID     uuid.UUID
	StoragePath string
	Format      string
}

// Ref returns the transcription reference for the record.
func (a *AudioRecord) Ref() AudioRef {
	return AudioRef{AudioID: a.ID, StoragePath: a.StoragePath, Format: a.Format}
}

// TranscriptionResult is the ephemeral output of speech-to-text.
// Confidence is on a 0..100 scale.
type TranscriptionResult struct {
	Text       string        `json:"text"`
	Confidence int           `json:"confidence"`
	Latency    time.Duration `json:"latency"`
}
