package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/facetally/facetally/internal/subprocess"
)

type ProbeResult struct {
	Duration  float64
	Width     int
	Height    int
	Codec     string
	FrameRate float64
	// Rotation is the display rotation in degrees, normalised to 0, 90, 180 or 270.
	Rotation int
}

// FrameSize is the size of the frames ffmpeg writes. ffmpeg applies the
// display rotation while decoding, so quarter turns swap width and height.
func (p *ProbeResult) FrameSize() (width, height int) {
	if p.Rotation == 90 || p.Rotation == 270 {
		return p.Height, p.Width
	}
	return p.Width, p.Height
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation *float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the first video stream's geometry and timing with ffprobe.
func (d *Decoder) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, d.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	)

	var stdout bytes.Buffer
	stderr := subprocess.NewTailBuffer(subprocess.MaxStderrBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err,
			subprocess.Truncate(strings.TrimSpace(stderr.String()), 500))
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("no video stream found")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	res := &ProbeResult{
		Width:     s.Width,
		Height:    s.Height,
		Codec:     s.CodecName,
		FrameRate: parseRate(s.RFrameRate),
		Rotation:  normaliseRotation(s.Tags.Rotate),
	}
	// The display matrix wins over the legacy rotate tag.
	for _, sd := range s.SideDataList {
		if sd.Rotation != nil {
			res.Rotation = normaliseRotation(strconv.FormatFloat(*sd.Rotation, 'f', -1, 64))
			break
		}
	}
	if res.FrameRate == 0 {
		res.FrameRate = parseRate(s.AvgFrameRate)
	}
	if out.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			res.Duration = dur
		}
	}
	return res, nil
}

// normaliseRotation maps "-90", "270", "90.0" and the like onto 0, 90, 180
// or 270. Anything unparsable counts as no rotation.
func normaliseRotation(s string) int {
	if s == "" {
		return 0
	}
	deg, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	quarter := int(math.Round(deg/90)) % 4
	if quarter < 0 {
		quarter += 4
	}
	return quarter * 90
}

// parseRate turns ffprobe's "30000/1001" notation into frames per second.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	dv, err := strconv.ParseFloat(den, 64)
	if err != nil || dv == 0 {
		return 0
	}
	return n / dv
}
