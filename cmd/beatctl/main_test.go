package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/beatstore-api/internal/rpchealth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPriceCmd(t *testing.T) {
	out, err := execute(t, "price", "--base", "2999", "--exclusive", "50000")
	require.NoError(t, err)
	assert.Contains(t, out, "basic      $15.00   estimated")
	assert.Contains(t, out, "premium    $29.99   estimated")
	assert.Contains(t, out, "exclusive  $500.00")

	out, err = execute(t, "price", "--base", "1000", "-l", "Premium")
	require.NoError(t, err)
	assert.Contains(t, out, "premium  $10.00  estimated")

	_, err = execute(t, "price", "--base", "1000", "-l", "lease")
	assert.Error(t, err)

	_, err = execute(t, "price")
	assert.Error(t, err)
}

func TestRPCCheckCmd(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	t.Cleanup(healthy.Close)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(down.Close)

	out, err := execute(t, "rpc-check", down.URL, healthy.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy: "+healthy.URL)

	_, err = execute(t, "rpc-check", "--retries", "0", down.URL)
	assert.ErrorIs(t, err, rpchealth.ErrAllEndpointsFailed)

	_, err = execute(t, "rpc-check")
	assert.Error(t, err)
}

func TestDefaultPreviewPath(t *testing.T) {
	assert.Equal(t, "beats/night.preview.mp3", defaultPreviewPath("beats/night.wav"))
	assert.Equal(t, "raw.preview.mp3", defaultPreviewPath("raw"))
}

// sineWAV builds a 16-bit mono WAV of n samples.
func sineWAV(n, rate int) []byte {
	var buf bytes.Buffer
	dataLen := n * 2
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for i := 0; i < n; i++ {
		v := int16((i % 100) * 300)
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func TestPreviewCmd(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping test")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "beat.wav")
	require.NoError(t, os.WriteFile(input, sineWAV(44100, 44100), 0o600))

	out, err := execute(t, "preview", input)
	require.NoError(t, err)
	assert.Contains(t, out, "13230 of 44100 samples at 44100 Hz")

	data, err := os.ReadFile(filepath.Join(dir, "beat.preview.mp3"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestPreviewCmd_MissingInput(t *testing.T) {
	_, err := execute(t, "preview", filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}
