// Package media provides audio encoding backed by external codecs.
package media

import "errors"

// Static errors for media operations.
var (
	// ErrUnsupportedSampleRate is returned when the MP3 encoder cannot run at the requested rate.
	ErrUnsupportedSampleRate = errors.New("media: unsupported mp3 sample rate")
	// ErrStreamClosed is returned when an EncodeStream is used after Flush or Close.
	ErrStreamClosed = errors.New("media: encode stream closed")
)

// Bitrate is the constant MP3 bitrate in kbps.
const Bitrate = 128

// FrameSamples is the number of samples in one MPEG-1 Layer III frame.
const FrameSamples = 1152

// supportedSampleRates lists the rates accepted by MPEG-1, MPEG-2 and MPEG-2.5 Layer III.
var supportedSampleRates = map[int]bool{
	8000:  true,
	11025: true,
	12000: true,
	16000: true,
	22050: true,
	24000: true,
	32000: true,
	44100: true,
	48000: true,
}

// SupportsSampleRate reports whether rate can be encoded to MP3.
func SupportsSampleRate(rate int) bool {
	return supportedSampleRates[rate]
}

// MP3Encoder starts constant-bitrate mono MP3 encode streams.
type MP3Encoder interface {
	// Start opens a new stream for 16-bit mono PCM at sampleRate.
	Start(sampleRate int) (EncodeStream, error)
}

// EncodeStream accepts PCM in chunks and returns encoded MP3 bytes as they
// become available. Every stream must be finished with Flush or Close.
type EncodeStream interface {
	// EncodeChunk encodes samples and returns any MP3 bytes produced so far.
	// The result may be empty; the encoder buffers internally.
	EncodeChunk(samples []int16) ([]byte, error)

	// Flush finishes the stream and returns the trailing frames.
	Flush() ([]byte, error)

	// Close aborts an unflushed stream. It is safe to call after Flush.
	Close() error
}
