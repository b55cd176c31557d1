package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ErrStreamInfo is returned when ffmpeg output does not describe an audio stream.
var ErrStreamInfo = errors.New("audio: could not parse stream info from ffmpeg output")

// streamInfoRe matches ffmpeg's input stream line, e.g.
// "Stream #0:0: Audio: aac (LC), 44100 Hz, stereo, fltp, 128 kb/s".
var streamInfoRe = regexp.MustCompile(`Audio: [^,]+, (\d+) Hz, ([^,]+),`)

// FFmpegDecoder decodes formats the built-in decoders do not cover (AAC, M4A,
// Ogg, ...) by piping them through the ffmpeg CLI as 32-bit float PCM.
type FFmpegDecoder struct {
	ffmpegPath string
}

// NewFFmpegDecoder creates a new FFmpegDecoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegDecoder(ffmpegPath string) *FFmpegDecoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegDecoder{ffmpegPath: ffmpegPath}
}

// Decode runs ffmpeg over data and returns the decoded buffer at the native
// sample rate and channel count.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("audio: ffmpeg decode: %w, stderr: %s", err, stderr.String())
	}

	sampleRate, channels, err := parseStreamInfo(stderr.String())
	if err != nil {
		return nil, err
	}

	raw := stdout.Bytes()
	interleaved := make([]float32, len(raw)/4)
	for i := range interleaved {
		interleaved[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return &Buffer{
		SampleRate: sampleRate,
		Channels:   deinterleave(interleaved, channels),
	}, nil
}

// parseStreamInfo extracts sample rate and channel count from ffmpeg stderr.
func parseStreamInfo(output string) (int, int, error) {
	matches := streamInfoRe.FindStringSubmatch(output)
	if len(matches) < 3 {
		return 0, 0, fmt.Errorf("%w: %s", ErrStreamInfo, output)
	}

	sampleRate, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sample rate %q", ErrStreamInfo, matches[1])
	}

	channels, err := parseChannelLayout(matches[2])
	if err != nil {
		return 0, 0, err
	}

	return sampleRate, channels, nil
}

// namedLayouts maps ffmpeg's non-numeric channel layout names to channel counts.
var namedLayouts = map[string]int{
	"mono":          1,
	"stereo":        2,
	"downmix":       2,
	"quad":          4,
	"hexagonal":     6,
	"octagonal":     8,
	"cube":          8,
	"hexadecagonal": 16,
}

// parseChannelLayout converts an ffmpeg channel layout name into a channel count.
// Numeric layouts such as "5.1" or "7.1.4" count the sum of their parts.
func parseChannelLayout(layout string) (int, error) {
	layout = strings.TrimSpace(layout)
	if i := strings.Index(layout, "("); i > 0 {
		layout = layout[:i] // "5.1(side)" -> "5.1"
	}

	if n, ok := namedLayouts[layout]; ok {
		return n, nil
	}

	if n, ok := sumLayoutParts(layout); ok {
		return n, nil
	}

	// "3 channels"
	if fields := strings.Fields(layout); len(fields) == 2 && fields[1] == "channels" {
		if n, err := strconv.Atoi(fields[0]); err == nil && n > 0 {
			return n, nil
		}
	}

	return 0, fmt.Errorf("%w: channel layout %q", ErrStreamInfo, layout)
}

func sumLayoutParts(layout string) (int, bool) {
	parts := strings.Split(layout, ".")
	if len(parts) < 2 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total += n
	}
	return total, total > 0
}
