// Package preview turns a full-length audio upload into a short, low-fidelity
// MP3 preview: the first 30% of the left channel at 128 kbps.
package preview

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"

	"github.com/maauso/beatstore-api/internal/audio"
	"github.com/maauso/beatstore-api/internal/media"
)

// ContentType is the MIME type of every preview asset.
const ContentType = "audio/mp3"

// The preview keeps previewNumerator/previewDenominator of the source.
const (
	previewNumerator   = 3
	previewDenominator = 10
)

// DefaultChunkFrames is the number of MP3 frames fed to the encoder per call.
const DefaultChunkFrames = 1

// Asset is an encoded preview.
type Asset struct {
	Data          []byte
	ContentType   string
	SampleRate    int
	Samples       int // samples in the preview window
	SourceSamples int // samples per channel in the decoded source
}

// Encoder produces previews. Each call owns its decoding context and
// encode stream, so an Encoder is safe for concurrent use.
type Encoder struct {
	decoder     audio.Decoder
	mp3         media.MP3Encoder
	logger      *slog.Logger
	chunkFrames int
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithChunkFrames sets how many 1152-sample frames are passed to the MP3
// encoder per chunk. Values below 1 are ignored.
func WithChunkFrames(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 0 {
			e.chunkFrames = n
		}
	}
}

// NewEncoder creates a new Encoder.
func NewEncoder(decoder audio.Decoder, mp3 media.MP3Encoder, logger *slog.Logger, opts ...EncoderOption) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Encoder{
		decoder:     decoder,
		mp3:         mp3,
		logger:      logger,
		chunkFrames: DefaultChunkFrames,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode decodes source and returns the MP3 preview of its first 30%.
// Decoding failures are returned as *DecodeError, encoding failures
// (including an empty window) as *EncodeError.
func (e *Encoder) Encode(source []byte) (*Asset, error) {
	buf, err := e.decode(source)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if buf.NumChannels() == 0 {
		return nil, &DecodeError{Err: audio.ErrNoChannels}
	}

	left := buf.Channels[0]
	window := Window(len(left))
	if window == 0 {
		return nil, &EncodeError{Err: fmt.Errorf("%w: %d samples", ErrEmptyPreview, len(left))}
	}

	pcm := Quantize(left[:window])

	data, err := e.encodeMP3(buf.SampleRate, pcm)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	e.logger.Debug("preview encoded",
		"sample_rate", buf.SampleRate,
		"source_samples", len(left),
		"preview_samples", window,
		"bytes", len(data),
	)

	return &Asset{
		Data:          data,
		ContentType:   ContentType,
		SampleRate:    buf.SampleRate,
		Samples:       window,
		SourceSamples: len(left),
	}, nil
}

// decode runs source through a fresh decoding context and always releases it.
func (e *Encoder) decode(source []byte) (*audio.Buffer, error) {
	ctx, err := e.decoder.NewContext()
	if err != nil {
		return nil, fmt.Errorf("acquire decoding context: %w", err)
	}
	defer func() {
		if closeErr := ctx.Close(); closeErr != nil {
			e.logger.Warn("failed to close decoding context", "error", closeErr)
		}
	}()

	return ctx.Decode(source)
}

func (e *Encoder) encodeMP3(sampleRate int, pcm []int16) ([]byte, error) {
	stream, err := e.mp3.Start(sampleRate)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stream.Close() }()

	chunkSize := e.chunkFrames * media.FrameSamples
	var out bytes.Buffer
	for start := 0; start < len(pcm); start += chunkSize {
		end := min(start+chunkSize, len(pcm))
		b, err := stream.EncodeChunk(pcm[start:end])
		if err != nil {
			return nil, err
		}
		out.Write(b)
	}

	tail, err := stream.Flush()
	if err != nil {
		return nil, err
	}
	out.Write(tail)

	return out.Bytes(), nil
}

// Window returns the preview length for a source of n samples: floor(n * 0.3).
func Window(n int) int {
	if n <= 0 {
		return 0
	}
	return n * previewNumerator / previewDenominator
}

// Quantize converts float samples into 16-bit PCM. Values are clamped to
// [-1, 1]; negatives scale by 32768 and the rest by 32767, truncating toward zero.
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}
