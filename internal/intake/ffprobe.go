package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrProbeUnavailable means the duration could not be determined for reasons
// unrelated to the audio itself, such as a missing ffprobe binary.
var ErrProbeUnavailable = errors.New("duration probe unavailable")

// ProbeResult is what the gate needs to know about a recording's contents.
type ProbeResult struct {
	DurationSecs float64
	AudioStreams int
}

// DurationProber inspects raw audio bytes.
type DurationProber interface {
	Probe(ctx context.Context, data []byte, format string) (ProbeResult, error)
}

// FFProbe shells out to ffprobe against a temp copy of the upload.
type FFProbe struct {
	Binary string
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p FFProbe) Probe(ctx context.Context, data []byte, format string) (ProbeResult, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}

	tmp, err := os.CreateTemp("", "intake-*."+format)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: create temp file: %v", ErrProbeUnavailable, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ProbeResult{}, fmt.Errorf("%w: write temp file: %v", ErrProbeUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: close temp file: %v", ErrProbeUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", tmp.Name())
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			// ffprobe ran and could not parse the file.
			return ProbeResult{}, fmt.Errorf("ffprobe: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrProbeUnavailable, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrProbeUnavailable, err)
	}

	var res ProbeResult
	for _, s := range out.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			res.AudioStreams++
		}
	}

	// Some containers carry no duration; that is reported as unknown, not corrupt.
	d := strings.TrimSpace(out.Format.Duration)
	if d == "" || d == "N/A" {
		return res, fmt.Errorf("%w: no duration reported", ErrProbeUnavailable)
	}
	secs, err := strconv.ParseFloat(d, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return res, fmt.Errorf("%w: bad duration %q", ErrProbeUnavailable, d)
	}
	res.DurationSecs = secs
	return res, nil
}
