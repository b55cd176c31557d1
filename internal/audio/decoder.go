package audio

import (
	"context"
	"fmt"
	"sync"
)

// AutoDecoder detects the format of its input and dispatches to the matching
// built-in decoder. Formats without a built-in decoder go to the optional
// ffmpeg fallback.
type AutoDecoder struct {
	fallback *FFmpegDecoder
}

// AutoDecoderOption configures an AutoDecoder.
type AutoDecoderOption func(*AutoDecoder)

// WithFFmpegFallback enables ffmpeg decoding for formats such as AAC and Ogg.
func WithFFmpegFallback(ffmpegPath string) AutoDecoderOption {
	return func(d *AutoDecoder) {
		d.fallback = NewFFmpegDecoder(ffmpegPath)
	}
}

// NewAutoDecoder creates a new AutoDecoder.
func NewAutoDecoder(opts ...AutoDecoderOption) *AutoDecoder {
	d := &AutoDecoder{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewContext implements Decoder.
func (d *AutoDecoder) NewContext() (Context, error) {
	return &autoContext{fallback: d.fallback}, nil
}

// Verify interface implementation at compile time.
var _ Decoder = (*AutoDecoder)(nil)

// autoContext is a single-use decoding context.
type autoContext struct {
	mu       sync.Mutex
	closed   bool
	flac     flacDecoder
	fallback *FFmpegDecoder
}

// Decode implements Context.
func (c *autoContext) Decode(data []byte) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrContextClosed
	}

	format, err := Detect(data)
	if err != nil {
		return nil, err
	}

	var buf *Buffer
	switch format {
	case FormatWAV:
		var info wavInfo
		if info, err = scanWAV(data); err != nil {
			return nil, err
		}
		if info.isPCM() || info.isFloat() {
			buf, err = decodeWAV(data, info)
		} else {
			buf, err = c.decodeOther(data, fmt.Sprintf("wav format tag 0x%04x", info.format))
		}
	case FormatMP3:
		buf, err = decodeMP3(data)
	case FormatFLAC:
		buf, err = c.flac.decode(data)
	default:
		buf, err = c.decodeOther(data, MIMEType(data))
	}
	if err != nil {
		return nil, err
	}

	if buf.NumChannels() == 0 {
		return nil, ErrNoChannels
	}
	return buf, nil
}

// decodeOther hands data to the ffmpeg fallback when one is configured.
func (c *autoContext) decodeOther(data []byte, kind string) (*Buffer, error) {
	if c.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, kind)
	}
	return c.fallback.Decode(context.Background(), data)
}

// Close implements Context.
func (c *autoContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContextClosed
	}
	c.closed = true
	return c.flac.close()
}
