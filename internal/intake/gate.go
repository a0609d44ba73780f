// Package intake validates uploaded recordings and persists the accepted ones.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/mindalert/internal/blob"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/metrics"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

// Metadata is the optional user-supplied context of an upload.
type Metadata struct {
	Description *string
	MoodRating  *int
}

// Non-audio MIME types that still carry audio-only recordings in practice.
var audioContainers = map[string]bool{
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"application/ogg": true,
	"video/quicktime": true,
	"video/3gpp":      true,
}

// Gate accepts or rejects uploads. It is the only writer of audio records.
type Gate struct {
	store   store.AudioStore
	blobs   blob.Store
	prober  DurationProber
	cfg     config.IntakeConfig
	allowed map[string]bool
	now     func() time.Time
}

func NewGate(s store.AudioStore, blobs blob.Store, prober DurationProber, cfg config.IntakeConfig) *Gate {
	allowed := make(map[string]bool, len(cfg.AllowedFormats))
	for _, f := range cfg.AllowedFormats {
		allowed[normalizeFormat(f)] = true
	}
	return &Gate{
		store:   s,
		blobs:   blobs,
		prober:  prober,
		cfg:     cfg,
		allowed: allowed,
		now:     time.Now,
	}
}

// Ingest validates the upload and, when accepted, stores the bytes and the
// audio record. A rejected upload has no side effects.
func (g *Gate) Ingest(ctx context.Context, userID uuid.UUID, data []byte, declaredFormat string, meta Metadata) (*models.AudioRecord, error) {
	format := normalizeFormat(declaredFormat)

	rec, err := g.validate(ctx, data, format, meta)
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) {
			metrics.IntakeRejected.WithLabelValues(string(ie.Kind)).Inc()
			slog.Info("audio rejected", "user_id", userID, "kind", ie.Kind, "reason", ie.Reason)
		}
		return nil, err
	}

	rec.ID = uuid.New()
	rec.UserID = userID
	rec.Format = format
	rec.FileSize = int64(len(data))
	rec.Description = meta.Description
	rec.MoodRating = meta.MoodRating
	rec.CreatedAt = g.now().UTC()
	rec.StoragePath = fmt.Sprintf("%s/%s.%s", userID, rec.ID, format)

	contentType := mimetype.Detect(data).String()
	if err := g.blobs.Put(ctx, rec.StoragePath, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("store audio: %w", err)
	}
	if err := g.store.CreateAudioRecord(ctx, rec); err != nil {
		if delErr := g.blobs.Delete(ctx, rec.StoragePath); delErr != nil {
			slog.Warn("orphaned audio blob", "path", rec.StoragePath, "error", delErr)
		}
		return nil, fmt.Errorf("create audio record: %w", err)
	}

	slog.Info("audio accepted", "user_id", userID, "audio_id", rec.ID, "format", format, "bytes", rec.FileSize)
	return rec, nil
}

func (g *Gate) validate(ctx context.Context, data []byte, format string, meta Metadata) (*models.AudioRecord, error) {
	if !g.allowed[format] {
		return nil, reject(KindUnsupportedFormat, "format %q is not accepted", format)
	}
	if len(data) == 0 {
		return nil, reject(KindCorruptAudio, "empty payload")
	}
	if int64(len(data)) > g.cfg.MaxFileBytes {
		return nil, reject(KindFileTooLarge, "%d bytes exceeds limit of %d", len(data), g.cfg.MaxFileBytes)
	}
	if meta.MoodRating != nil && (*meta.MoodRating < 1 || *meta.MoodRating > 10) {
		return nil, fmt.Errorf("%w: mood rating must be between 1 and 10", ErrInvalidMetadata)
	}

	mt := mimetype.Detect(data)
	if !isAudio(mt) {
		return nil, reject(KindCorruptAudio, "content detected as %s", mt.String())
	}

	rec := &models.AudioRecord{}
	if g.prober == nil {
		return rec, nil
	}

	res, err := g.prober.Probe(ctx, data, format)
	switch {
	case errors.Is(err, ErrProbeUnavailable):
		slog.Debug("audio duration unknown", "error", err)
		return rec, nil
	case err != nil:
		return nil, reject(KindCorruptAudio, "%v", err)
	}

	if res.AudioStreams == 0 {
		return nil, reject(KindCorruptAudio, "no audio stream")
	}
	if res.DurationSecs <= 0 {
		return nil, reject(KindCorruptAudio, "zero duration")
	}
	if g.cfg.MaxDuration > 0 && res.DurationSecs > g.cfg.MaxDuration.Seconds() {
		return nil, reject(KindFileTooLarge, "duration %.1fs exceeds limit of %s", res.DurationSecs, g.cfg.MaxDuration)
	}
	d := res.DurationSecs
	rec.DurationSecs = &d
	return rec, nil
}

func isAudio(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || audioContainers[m.String()] {
			return true
		}
	}
	return false
}

func normalizeFormat(f string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(f)), ".")
}
