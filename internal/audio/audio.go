// Package audio decodes uploaded audio files into normalized float samples.
// Decoding happens inside a Context, which callers acquire from a Decoder and
// must close once they are done with it.
package audio

import (
	"errors"
)

// Static errors for audio decoding.
var (
	// ErrUnsupportedFormat is returned when the content is not a recognized audio format.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")
	// ErrEmptyInput is returned when there are no bytes to decode.
	ErrEmptyInput = errors.New("audio: empty input")
	// ErrContextClosed is returned when a closed Context is used or closed again.
	ErrContextClosed = errors.New("audio: decoding context closed")
	// ErrNoChannels is returned when the decoded stream has no channels.
	ErrNoChannels = errors.New("audio: stream has no channels")
	// ErrUnsupportedBitDepth is returned for PCM bit depths the decoder cannot normalize.
	ErrUnsupportedBitDepth = errors.New("audio: unsupported bit depth")
)

// Format identifies a container/codec detected from file content.
type Format string

// Formats recognized by the decoder.
const (
	FormatWAV   Format = "wav"
	FormatMP3   Format = "mp3"
	FormatFLAC  Format = "flac"
	FormatOther Format = "other" // audio the built-in decoders do not handle
)

// Buffer holds decoded audio as one float32 slice per channel.
// Sample values are in the range [-1.0, 1.0].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumChannels returns the number of channels in the buffer.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Decoder hands out decoding contexts.
type Decoder interface {
	// NewContext acquires a decoding context. The caller must Close it.
	NewContext() (Context, error)
}

// Context decodes audio and owns any resources needed to do so.
type Context interface {
	// Decode converts encoded audio bytes into a Buffer at the native sample rate.
	Decode(data []byte) (*Buffer, error)

	// Close releases the context. Closing twice returns ErrContextClosed.
	Close() error
}

// deinterleave splits interleaved samples into per-channel slices.
func deinterleave(interleaved []float32, channels int) [][]float32 {
	frames := len(interleaved) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = interleaved[i*channels+ch]
		}
	}
	return out
}
