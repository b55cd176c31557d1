package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/hajimehoshi/go-mp3"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// encodeAll runs samples through a fresh stream in chunks of chunkSize.
func encodeAll(t *testing.T, enc MP3Encoder, sampleRate int, samples []int16, chunkSize int) []byte {
	t.Helper()

	stream, err := enc.Start(sampleRate)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = stream.Close() }()

	var out bytes.Buffer
	for start := 0; start < len(samples); start += chunkSize {
		end := min(start+chunkSize, len(samples))
		b, err := stream.EncodeChunk(samples[start:end])
		if err != nil {
			t.Fatalf("EncodeChunk() error = %v", err)
		}
		out.Write(b)
	}

	b, err := stream.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	out.Write(b)

	return out.Bytes()
}

func sineSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		// Triangle-ish wave, cheap and deterministic.
		samples[i] = int16((i%200 - 100) * 300)
	}
	return samples
}

func TestNewFFmpegEncoder(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		e := NewFFmpegEncoder("")
		if e.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", e.ffmpegPath)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		e := NewFFmpegEncoder("/usr/local/bin/ffmpeg")
		if e.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", e.ffmpegPath)
		}
	})
}

func TestSupportsSampleRate(t *testing.T) {
	for _, rate := range []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000} {
		if !SupportsSampleRate(rate) {
			t.Errorf("SupportsSampleRate(%d) = false, want true", rate)
		}
	}
	for _, rate := range []int{0, 96000, 44000, 192000} {
		if SupportsSampleRate(rate) {
			t.Errorf("SupportsSampleRate(%d) = true, want false", rate)
		}
	}
}

func TestFFmpegEncoder_UnsupportedSampleRate(t *testing.T) {
	// Rejected before ffmpeg is started, so this runs without the binary.
	_, err := NewFFmpegEncoder("/nonexistent/ffmpeg").Start(96000)
	if !errors.Is(err, ErrUnsupportedSampleRate) {
		t.Fatalf("expected ErrUnsupportedSampleRate, got %v", err)
	}
}

func TestFFmpegEncoder_MissingBinary(t *testing.T) {
	_, err := NewFFmpegEncoder("/nonexistent/ffmpeg").Start(44100)
	var ffErr *FFmpegError
	if !errors.As(err, &ffErr) {
		t.Fatalf("expected *FFmpegError, got %v", err)
	}
}

func TestEncodeArgs(t *testing.T) {
	args := strings.Join(encodeArgs(22050), " ")

	for _, want := range []string{
		"-f s16le -ar 22050 -ac 1 -i pipe:0",
		"-c:a libmp3lame",
		"-b:a 128k",
		"-write_xing 0",
		"-id3v2_version 0",
		"-f mp3 pipe:1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestFFmpegEncoder_Encode(t *testing.T) {
	skipIfNoFFmpeg(t)

	samples := sineSamples(44100)
	data := encodeAll(t, NewFFmpegEncoder(""), 44100, samples, FrameSamples*4)

	if len(data) == 0 {
		t.Fatal("expected encoded output")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid mp3: %v", err)
	}
	if dec.SampleRate() != 44100 {
		t.Errorf("expected 44100 Hz, got %d", dec.SampleRate())
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	// go-mp3 emits 16-bit stereo; the encoder pads to whole frames.
	frames := len(pcm) / 4
	if frames < len(samples) {
		t.Errorf("decoded %d frames, expected at least %d", frames, len(samples))
	}
}

func TestFFmpegEncoder_Deterministic(t *testing.T) {
	skipIfNoFFmpeg(t)

	enc := NewFFmpegEncoder("")
	samples := sineSamples(16000)

	first := encodeAll(t, enc, 16000, samples, FrameSamples)
	second := encodeAll(t, enc, 16000, samples, FrameSamples*8)

	if !bytes.Equal(first, second) {
		t.Errorf("encoding is not deterministic: %d bytes vs %d bytes", len(first), len(second))
	}
}

func TestFFmpegStream_UseAfterFlush(t *testing.T) {
	skipIfNoFFmpeg(t)

	stream, err := NewFFmpegEncoder("").Start(8000)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := stream.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if _, err := stream.EncodeChunk(make([]int16, 10)); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("EncodeChunk after Flush: expected ErrStreamClosed, got %v", err)
	}
	if _, err := stream.Flush(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("second Flush: expected ErrStreamClosed, got %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("Close after Flush: %v", err)
	}
}

func TestFFmpegStream_CloseAborts(t *testing.T) {
	skipIfNoFFmpeg(t)

	stream, err := NewFFmpegEncoder("").Start(44100)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := stream.EncodeChunk(sineSamples(FrameSamples)); err != nil {
		t.Fatalf("EncodeChunk() error = %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := stream.Flush(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Flush after Close: expected ErrStreamClosed, got %v", err)
	}
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-f", "s16le", "-i", "pipe:0", "-f", "mp3", "pipe:1"},
		Stderr: "Unknown encoder 'libmp3lame'",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Unknown encoder") {
		t.Error("Error() should contain stderr")
	}

	unwrapped := err.Unwrap()
	if unwrapped == nil || unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
}
