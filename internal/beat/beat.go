// Package beat provides the Beat aggregate for the catalog: a producer's
// track with its license prices and the lifecycle of its uploaded audio and
// generated preview.
package beat

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/beatstore-api/internal/pricing"
)

// Status represents the current state of a Beat's audio.
type Status string

const (
	// StatusPending indicates no audio has been uploaded yet.
	StatusPending Status = "PENDING"
	// StatusProcessing indicates the source is being stored and the preview encoded.
	StatusProcessing Status = "PROCESSING"
	// StatusReady indicates the preview is available and the beat can be sold.
	StatusReady Status = "READY"
	// StatusFailed indicates the preview could not be generated. A new upload is required.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {StatusProcessing},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Beat is the catalog aggregate.
type Beat struct {
	mu sync.RWMutex

	ID         string
	ProducerID string
	Title      string
	Genre      string
	BPM        int
	Tiers      pricing.Tiers

	Status Status
	// Error holds the reason for the last failed upload.
	Error string

	// SourceKey and PreviewKey are storage keys.
	SourceKey      string
	PreviewKey     string
	PreviewURL     string
	PreviewSamples int
	SampleRate     int

	CreatedAt time.Time
	UpdatedAt time.Time
	ReadyAt   time.Time
}

// New creates a new Beat with a generated ID in PENDING status.
func New(producerID, title string) *Beat {
	return NewWithID(NewID(), producerID, title)
}

// NewWithID creates a new Beat with the specified ID in PENDING status.
func NewWithID(beatID, producerID, title string) *Beat {
	now := time.Now()
	return &Beat{
		ID:         beatID,
		ProducerID: producerID,
		Title:      title,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the beat status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (b *Beat) TransitionTo(status Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(status)
}

func (b *Beat) transitionLocked(status Status) error {
	if !canTransition(b.Status, status) {
		return ErrInvalidTransition
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	switch status {
	case StatusProcessing:
		b.Error = ""
	case StatusReady:
		b.ReadyAt = b.UpdatedAt
	}
	return nil
}

// StartProcessing moves the beat to PROCESSING for a new upload.
func (b *Beat) StartProcessing(sourceKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.transitionLocked(StatusProcessing); err != nil {
		return err
	}
	b.SourceKey = sourceKey
	return nil
}

// MarkReady records the stored preview and moves the beat to READY.
func (b *Beat) MarkReady(previewKey, previewURL string, samples, sampleRate int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.transitionLocked(StatusReady); err != nil {
		return err
	}
	b.PreviewKey = previewKey
	b.PreviewURL = previewURL
	b.PreviewSamples = samples
	b.SampleRate = sampleRate
	return nil
}

// Fail moves the beat to FAILED with an error message.
func (b *Beat) Fail(errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.transitionLocked(StatusFailed); err != nil {
		return err
	}
	b.Error = errMsg
	return nil
}

// GetStatus returns the current status (thread-safe).
func (b *Beat) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status
}

// IsPurchasable reports whether the beat has a preview and can be sold.
func (b *Beat) IsPurchasable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status == StatusReady
}

// PreviewDuration returns the preview length, or zero when unknown.
func (b *Beat) PreviewDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.PreviewSamples) * time.Second / time.Duration(b.SampleRate)
}

// Clone creates a copy of the beat for safe reads.
func (b *Beat) Clone() *Beat {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &Beat{
		ID:             b.ID,
		ProducerID:     b.ProducerID,
		Title:          b.Title,
		Genre:          b.Genre,
		BPM:            b.BPM,
		Tiers:          b.Tiers,
		Status:         b.Status,
		Error:          b.Error,
		SourceKey:      b.SourceKey,
		PreviewKey:     b.PreviewKey,
		PreviewURL:     b.PreviewURL,
		PreviewSamples: b.PreviewSamples,
		SampleRate:     b.SampleRate,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		ReadyAt:        b.ReadyAt,
	}
}
