package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeData is what a structural probe reports about a media artifact.
type ProbeData struct {
	// DurationSeconds is zero when the container declares no duration.
	DurationSeconds float64
	// StreamTypes lists the codec types present, e.g. "video", "audio".
	StreamTypes []string
}

// Prober inspects a media file. Implementations must honor the context
// deadline; the gate treats any error as a failed probe.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeData, error)
}

// FFProbe probes with the ffprobe binary.
type FFProbe struct {
	// Binary overrides the executable name, default "ffprobe".
	Binary string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// Probe runs ffprobe and parses its JSON output.
func (p *FFProbe) Probe(ctx context.Context, path string) (*ProbeData, error) {
	binary := p.Binary
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe execution failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("ffprobe output was not valid JSON: %w", err)
	}

	data := &ProbeData{}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			data.DurationSeconds = d
		}
	}
	for _, s := range parsed.Streams {
		data.StreamTypes = append(data.StreamTypes, s.CodecType)
	}
	return data, nil
}
