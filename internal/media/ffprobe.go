package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFprobeInspector implements MediaInspector using the ffprobe CLI.
type FFprobeInspector struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprobeInspector creates a new FFprobeInspector.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobeInspector(ffprobePath string) *FFprobeInspector {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobeInspector{ffprobePath: ffprobePath}
}

// ffprobeOutput mirrors the subset of `ffprobe -of json` output we consume.
// ffprobe reports durations as strings.
type ffprobeOutput struct {
	Streams []struct {
		Index     int    `json:"index"`
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on path and returns its duration and streams.
func (i *FFprobeInspector) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, fmt.Errorf("%w: empty path", ErrFFprobeExecution)
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, i.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return ProbeResult{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbeOutput(stdout.Bytes())
}

// parseProbeOutput converts ffprobe JSON into a ProbeResult. A missing
// container duration becomes 0; a missing stream duration stays nil. A
// duration that is present but malformed fails with ErrProbeParse, for the
// container and for streams alike.
func parseProbeOutput(data []byte) (ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %w", ErrProbeParse, err)
	}

	duration, ok, err := parseSeconds(out.Format.Duration)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: container duration: %w", ErrProbeParse, err)
	}
	if !ok {
		duration = 0
	}

	streams := make([]StreamInfo, 0, len(out.Streams))
	for _, s := range out.Streams {
		info := StreamInfo{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
		}
		d, ok, err := parseSeconds(s.Duration)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("%w: stream %d duration: %w", ErrProbeParse, s.Index, err)
		}
		if ok {
			info.Duration = &d
		}
		streams = append(streams, info)
	}

	return ProbeResult{Duration: duration, Streams: streams}, nil
}

// parseSeconds parses an ffprobe duration string. ok is false when the value
// is absent ("" or "N/A").
func parseSeconds(value string) (float64, bool, error) {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "N/A") {
		return 0, false, nil
	}
	d, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, err
	}
	if d < 0 {
		return 0, false, fmt.Errorf("negative duration %q", v)
	}
	return d, true, nil
}
