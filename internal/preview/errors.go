package preview

import (
	"errors"
	"fmt"
)

// ErrEmptyPreview is returned when the preview window contains no samples.
var ErrEmptyPreview = errors.New("preview: source too short for a preview")

// DecodeError reports that the source could not be decoded as audio.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("preview: decode source: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports that the preview window could not be encoded to MP3.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("preview: encode mp3: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
