package audio

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Detect sniffs the content and returns its audio format.
// Non-audio content returns ErrUnsupportedFormat.
func Detect(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}

	mime := mimetype.Detect(data)
	switch {
	case mime.Is("audio/wav"):
		return FormatWAV, nil
	case mime.Is("audio/mpeg"):
		return FormatMP3, nil
	case mime.Is("audio/flac"):
		return FormatFLAC, nil
	}

	// Walk the parent chain so container types like audio/x-m4a still count as audio.
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return FormatOther, nil
		}
	}

	return "", ErrUnsupportedFormat
}

// MIMEType returns the detected MIME type string for the content.
func MIMEType(data []byte) string {
	return mimetype.Detect(data).String()
}
