package beat

import (
	"strings"
	"testing"

	"github.com/maauso/beatstore-api/internal/pricing"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Night Drive", "night-drive"},
		{"  Night   Drive  ", "night-drive"},
		{"Night Drive (Prod. X)", "night-drive-prod-x"},
		{"DJ_Nova!!", "dj-nova"},
		{"Café 808", "caf-808"},
		{"", "untitled"},
		{"!!!", "untitled"},
		{"123", "123"},
		{strings.Repeat("ab ", 50), strings.TrimRight(strings.Repeat("ab-", 22)[:64], "-")},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlug_MaxLength(t *testing.T) {
	s := Slug(strings.Repeat("x", 200))
	if len(s) != maxSlugLen {
		t.Errorf("len(Slug) = %d, want %d", len(s), maxSlugLen)
	}
}

func TestSourceKey(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"beat.WAV", "beats/b1/source.wav"},
		{"my track.mp3", "beats/b1/source.mp3"},
		{"noext", "beats/b1/source.bin"},
		{"weird.w@v", "beats/b1/source.bin"},
		{"../../etc/passwd.flac", "beats/b1/source.flac"},
	}
	for _, tt := range tests {
		if got := SourceKey("b1", tt.filename); got != tt.want {
			t.Errorf("SourceKey(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestPreviewKey(t *testing.T) {
	if got := PreviewKey("b1"); got != "beats/b1/preview.mp3" {
		t.Errorf("PreviewKey() = %q", got)
	}
}

func TestIsPreviewKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{PreviewKey("b1"), true},
		{SourceKey("b1", "master.wav"), false},
		{"beats//preview.mp3", false},
		{"beats/b1/preview.mp3/x", false},
		{"other/b1/preview.mp3", false},
		{"preview.mp3", false},
	}
	for _, tt := range tests {
		if got := IsPreviewKey(tt.key); got != tt.want {
			t.Errorf("IsPreviewKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestDownloadFilename(t *testing.T) {
	got := DownloadFilename("DJ Nova", "Night Drive", pricing.LicensePremium, ".WAV")
	if got != "dj-nova_night-drive_premium.wav" {
		t.Errorf("DownloadFilename() = %q", got)
	}

	got = DownloadFilename("", "Night Drive", pricing.LicenseBasic, "")
	if got != "untitled_night-drive_basic" {
		t.Errorf("DownloadFilename() = %q", got)
	}
}
