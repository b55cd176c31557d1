package beat

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/maauso/beatstore-api/internal/pricing"
)

const maxSlugLen = 64

// Slug converts a title into a lowercase ASCII slug, e.g.
// "Night Drive (Prod. X)" -> "night-drive-prod-x".
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	s := strings.Trim(b.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// extension returns the lowercase extension of filename, or "" when it is
// not a short alphanumeric extension.
func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// SourceKey returns the storage key for a beat's uploaded audio.
func SourceKey(beatID, filename string) string {
	ext := extension(filename)
	if ext == "" {
		ext = ".bin"
	}
	return "beats/" + beatID + "/source" + ext
}

// PreviewKey returns the storage key for a beat's MP3 preview.
func PreviewKey(beatID string) string {
	return "beats/" + beatID + "/preview.mp3"
}

// IsPreviewKey reports whether key has the shape PreviewKey produces.
// Only these objects are public; uploaded sources are not.
func IsPreviewKey(key string) bool {
	parts := strings.Split(key, "/")
	return len(parts) == 3 && parts[0] == "beats" && parts[1] != "" && parts[2] == "preview.mp3"
}

// DownloadFilename builds the name a buyer's download is saved under, e.g.
// "dj-nova_night-drive_premium.wav".
func DownloadFilename(producer, title string, license pricing.License, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := Slug(producer) + "_" + Slug(title) + "_" + string(license)
	if ext == "" {
		return name
	}
	return name + "." + ext
}
