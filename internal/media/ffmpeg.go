package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpegEncoder implements MP3Encoder using the ffmpeg CLI with libmp3lame.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath}
}

// Verify interface implementation at compile time.
var _ MP3Encoder = (*FFmpegEncoder)(nil)

// encodeArgs builds the ffmpeg arguments for a raw s16le mono input at sampleRate.
// Metadata, ID3 and Xing headers are stripped so identical PCM gives identical bytes.
func encodeArgs(sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le", // Raw signed 16-bit little endian input
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
		"-map_metadata", "-1",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
		"-c:a", "libmp3lame",
		"-b:a", strconv.Itoa(Bitrate) + "k",
		"-ac", "1",
		"-write_xing", "0",
		"-id3v2_version", "0",
		"-f", "mp3",
		"pipe:1",
	}
}

// Start launches an ffmpeg process for one encode stream.
func (e *FFmpegEncoder) Start(sampleRate int) (EncodeStream, error) {
	if !SupportsSampleRate(sampleRate) {
		return nil, fmt.Errorf("%w: %d Hz", ErrUnsupportedSampleRate, sampleRate)
	}

	args := encodeArgs(sampleRate)
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.Command(e.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}

	s := &ffmpegStream{
		cmd:     cmd,
		args:    args,
		stdin:   stdin,
		drained: make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	if err := cmd.Start(); err != nil {
		return nil, &FFmpegError{Args: args, Err: err}
	}

	go s.drain(stdout)

	return s, nil
}

// ffmpegStream is a running ffmpeg encode. Output is read concurrently so
// the process never blocks on a full stdout pipe.
type ffmpegStream struct {
	cmd     *exec.Cmd
	args    []string
	stdin   io.WriteCloser
	stderr  bytes.Buffer
	drained chan struct{}

	mu      sync.Mutex
	out     bytes.Buffer
	readErr error
	done    bool
}

func (s *ffmpegStream) drain(stdout io.Reader) {
	defer close(s.drained)

	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.out.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			return
		}
	}
}

// take returns and clears the bytes read from ffmpeg so far.
func (s *ffmpegStream) take() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out.Len() == 0 {
		return nil
	}
	b := make([]byte, s.out.Len())
	copy(b, s.out.Bytes())
	s.out.Reset()
	return b
}

func (s *ffmpegStream) EncodeChunk(samples []int16) ([]byte, error) {
	if s.done {
		return nil, ErrStreamClosed
	}

	pcm := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}

	if _, err := s.stdin.Write(pcm); err != nil {
		// ffmpeg has usually exited already; its exit status says why.
		waitErr := s.finish(false)
		if waitErr == nil {
			waitErr = err
		}
		return nil, &FFmpegError{Args: s.args, Stderr: s.stderr.String(), Err: waitErr}
	}

	return s.take(), nil
}

func (s *ffmpegStream) Flush() ([]byte, error) {
	if s.done {
		return nil, ErrStreamClosed
	}

	if err := s.finish(false); err != nil {
		return nil, &FFmpegError{Args: s.args, Stderr: s.stderr.String(), Err: err}
	}

	s.mu.Lock()
	readErr := s.readErr
	s.mu.Unlock()
	if readErr != nil {
		return nil, fmt.Errorf("read ffmpeg output: %w", readErr)
	}

	return s.take(), nil
}

func (s *ffmpegStream) Close() error {
	if s.done {
		return nil
	}
	_ = s.finish(true)
	return nil
}

// finish ends the process. Without kill, ffmpeg sees EOF on stdin and
// writes its trailing frames before exiting.
func (s *ffmpegStream) finish(kill bool) error {
	s.done = true

	if kill && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdin.Close()

	// All output must be read before Wait closes the pipe.
	<-s.drained

	err := s.cmd.Wait()
	if kill {
		return nil
	}
	return err
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
