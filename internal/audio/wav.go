package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-audio/wav"
)

// WAVE format tags read from the fmt chunk.
const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE
)

// wavInfo is the header summary gathered by scanWAV.
type wavInfo struct {
	format     uint16 // resolved through the EXTENSIBLE sub-format
	channels   int
	sampleRate int
	bitDepth   int
	data       []byte
}

func (w wavInfo) isPCM() bool   { return w.format == wavFormatPCM }
func (w wavInfo) isFloat() bool { return w.format == wavFormatFloat }

// scanWAV walks the RIFF chunks of data without allocating from header
// fields. A chunk whose declared size runs past the end of the input is
// rejected before any decoder sees it.
func scanWAV(data []byte) (wavInfo, error) {
	var info wavInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	var haveFmt, haveData bool
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int64(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if remaining := int64(len(data) - body); size > remaining {
			return info, fmt.Errorf("%w: wav chunk %q declares %d bytes, %d remain",
				ErrUnsupportedFormat, id, size, remaining)
		}
		chunk := data[body : body+int(size)]

		switch id {
		case "fmt ":
			if err := info.parseFormat(chunk); err != nil {
				return info, err
			}
			haveFmt = true
		case "data":
			info.data = chunk
			haveData = true
		}

		// Chunks are word aligned.
		pos = body + int(size) + int(size&1)
	}

	if !haveFmt {
		return info, fmt.Errorf("%w: wav has no fmt chunk", ErrUnsupportedFormat)
	}
	if !haveData {
		return info, fmt.Errorf("%w: wav has no data chunk", ErrUnsupportedFormat)
	}
	return info, nil
}

func (w *wavInfo) parseFormat(chunk []byte) error {
	if len(chunk) < 16 {
		return fmt.Errorf("%w: wav fmt chunk is %d bytes", ErrUnsupportedFormat, len(chunk))
	}
	w.format = binary.LittleEndian.Uint16(chunk[0:2])
	w.channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
	w.sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
	w.bitDepth = int(binary.LittleEndian.Uint16(chunk[14:16]))

	// WAVE_FORMAT_EXTENSIBLE carries the real tag in the first two bytes of
	// the sub-format GUID.
	if w.format == wavFormatExtensible {
		if len(chunk) < 26 {
			return fmt.Errorf("%w: truncated extensible wav fmt chunk", ErrUnsupportedFormat)
		}
		w.format = binary.LittleEndian.Uint16(chunk[24:26])
	}
	return nil
}

// decodeWAV decodes a PCM or IEEE float WAV file. info must come from
// scanWAV over the same bytes.
func decodeWAV(data []byte, info wavInfo) (*Buffer, error) {
	if info.channels == 0 {
		return nil, ErrNoChannels
	}

	switch {
	case info.isFloat():
		return decodeFloatWAV(info)
	case !info.isPCM():
		return nil, fmt.Errorf("%w: wav format tag 0x%04x", ErrUnsupportedFormat, info.format)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: invalid wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read wav pcm: %w", err)
	}

	if dec.NumChans == 0 {
		return nil, ErrNoChannels
	}

	normalize, err := pcmNormalizer(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = normalize(v)
	}

	return &Buffer{
		SampleRate: int(dec.SampleRate),
		Channels:   deinterleave(interleaved, int(dec.NumChans)),
	}, nil
}

// decodeFloatWAV reads 32 or 64-bit IEEE float samples, clamped to [-1, 1].
func decodeFloatWAV(info wavInfo) (*Buffer, error) {
	var width int
	var read func([]byte) float64
	switch info.bitDepth {
	case 32:
		width = 4
		read = func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
	case 64:
		width = 8
		read = func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
	default:
		return nil, fmt.Errorf("%w: float %d", ErrUnsupportedBitDepth, info.bitDepth)
	}

	interleaved := make([]float32, len(info.data)/width)
	for i := range interleaved {
		v := read(info.data[i*width:])
		if math.IsNaN(v) {
			v = 0
		}
		interleaved[i] = float32(max(-1, min(1, v)))
	}

	return &Buffer{
		SampleRate: info.sampleRate,
		Channels:   deinterleave(interleaved, info.channels),
	}, nil
}

// pcmNormalizer maps integer PCM samples of the given bit depth into [-1, 1].
// 8-bit WAV is unsigned and centered on 128.
func pcmNormalizer(bitDepth int) (func(int) float32, error) {
	switch bitDepth {
	case 8:
		return func(v int) float32 { return float32(v-128) / 128 }, nil
	case 16, 24, 32:
		scale := float32(int64(1) << (bitDepth - 1))
		return func(v int) float32 { return float32(v) / scale }, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}
