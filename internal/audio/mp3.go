package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Channels is fixed: go-mp3 always emits interleaved 16-bit stereo.
const mp3Channels = 2

// decodeMP3 decodes an MP3 stream using go-mp3.
func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("audio: open mp3: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("audio: read mp3 pcm: %w", err)
	}

	numSamples := len(pcm) / 2
	interleaved := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		interleaved[i] = float32(sample16) / 32768
	}

	return &Buffer{
		SampleRate: dec.SampleRate(),
		Channels:   deinterleave(interleaved, mp3Channels),
	}, nil
}
