package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// flacDecoder decodes FLAC frame by frame. The stream stays open until
// close is called so the owning Context controls its lifetime.
type flacDecoder struct {
	stream *flac.Stream
}

func (d *flacDecoder) decode(data []byte) (*Buffer, error) {
	if err := d.close(); err != nil {
		return nil, err
	}

	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("audio: open flac: %w", err)
	}
	d.stream = stream

	info := stream.Info
	channels := int(info.NChannels)
	if channels == 0 {
		return nil, ErrNoChannels
	}
	bitDepth := int(info.BitsPerSample)
	if bitDepth < 4 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))

	out := make([][]float32, channels)
	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("audio: parse flac frame: %w", err)
		}
		for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
			for _, s := range frame.Subframes[ch].Samples {
				out[ch] = append(out[ch], float32(s)/scale)
			}
		}
	}

	return &Buffer{
		SampleRate: int(info.SampleRate),
		Channels:   out,
	}, nil
}

func (d *flacDecoder) close() error {
	if d.stream == nil {
		return nil
	}
	err := d.stream.Close()
	d.stream = nil
	return err
}
