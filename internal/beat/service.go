package beat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/beatstore-api/internal/preview"
	"github.com/maauso/beatstore-api/internal/pricing"
	"github.com/maauso/beatstore-api/internal/storage"
)

// Static errors for catalog operations.
var (
	// ErrForbidden is returned when a producer acts on another producer's beat.
	ErrForbidden = errors.New("beat belongs to another producer")
	// ErrPreviewNotReady is returned when the beat has no preview yet.
	ErrPreviewNotReady = errors.New("preview not ready")
	// ErrEmptyUpload is returned when the uploaded file has no content.
	ErrEmptyUpload = errors.New("uploaded file is empty")
)

// DefaultSignedURLTTL is how long signed preview URLs stay valid.
const DefaultSignedURLTTL = 10 * time.Minute

// PreviewEncoder turns uploaded audio into an MP3 preview.
type PreviewEncoder interface {
	Encode(source []byte) (*preview.Asset, error)
}

// CreateInput contains the fields for a new beat.
type CreateInput struct {
	ProducerID string
	Title      string
	Genre      string
	BPM        int
	Tiers      pricing.Tiers
}

// CartLine is a beat+license pair to be priced.
type CartLine struct {
	BeatID  string
	License pricing.License
}

// Service orchestrates the beat catalog: it persists beats, stores uploaded
// sources and generates their previews.
type Service struct {
	repo         Repository
	store        storage.Storage
	previews     PreviewEncoder
	logger       *slog.Logger
	signedURLTTL time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSignedURLTTL sets the lifetime of signed preview URLs.
func WithSignedURLTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.signedURLTTL = ttl
		}
	}
}

// NewService creates a new Service.
func NewService(repo Repository, store storage.Storage, previews PreviewEncoder, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:         repo,
		store:        store,
		previews:     previews,
		logger:       logger,
		signedURLTTL: DefaultSignedURLTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBeat creates a beat in PENDING status and persists it.
func (s *Service) CreateBeat(ctx context.Context, in CreateInput) (*Beat, error) {
	b := New(in.ProducerID, in.Title)
	b.Genre = in.Genre
	b.BPM = in.BPM
	b.Tiers = in.Tiers

	if err := s.repo.Save(ctx, b); err != nil {
		s.logger.Error("failed to save beat",
			slog.String("beat_id", b.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("beat created",
		slog.String("beat_id", b.ID),
		slog.String("producer_id", in.ProducerID),
		slog.String("title", in.Title),
	)
	return b, nil
}

// GetBeat retrieves a beat by ID.
func (s *Service) GetBeat(ctx context.Context, id string) (*Beat, error) {
	return s.repo.FindByID(ctx, id)
}

// ListBeats returns beats matching the filter.
func (s *Service) ListBeats(ctx context.Context, f Filter) ([]*Beat, error) {
	return s.repo.List(ctx, f)
}

// StartUpload checks ownership and claims the beat by moving it to
// PROCESSING. The claim is conditional on the status that was read, so of
// several concurrent uploads only one succeeds. producerID may be empty for
// internal callers.
func (s *Service) StartUpload(ctx context.Context, id, producerID, filename string) (*Beat, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if producerID != "" && b.ProducerID != producerID {
		return nil, ErrForbidden
	}

	from := b.GetStatus()
	if err := b.StartProcessing(SourceKey(b.ID, filename)); err != nil {
		return nil, fmt.Errorf("beat %s is %s: %w", b.ID, from, err)
	}
	if err := s.repo.Update(ctx, b, from); err != nil {
		if errors.Is(err, ErrStaleUpdate) {
			return nil, fmt.Errorf("beat %s: upload already started: %w", b.ID, ErrInvalidTransition)
		}
		return nil, err
	}
	return b, nil
}

// CompleteUpload stores the source audio, encodes and stores the preview, and
// marks the beat READY. If anything fails the beat is marked FAILED with the
// error text and must be uploaded again. If the beat is deleted while the
// upload runs, the stored audio is removed and ErrBeatNotFound is returned.
func (s *Service) CompleteUpload(ctx context.Context, b *Beat, data []byte) (*Beat, error) {
	logger := s.logger.With(slog.String("beat_id", b.ID))

	err := s.completeUpload(ctx, b, data, logger)
	if err == nil {
		logger.Info("beat ready",
			slog.Int("preview_samples", b.PreviewSamples),
			slog.Duration("preview_duration", b.PreviewDuration()),
		)
		return b, nil
	}

	if errors.Is(err, ErrBeatNotFound) {
		logger.Warn("beat deleted during upload")
		s.removeAudio(ctx, b.ID, b.SourceKey, PreviewKey(b.ID))
		return nil, err
	}

	logger.Error("upload failed", slog.String("error", err.Error()))
	if failErr := b.Fail(err.Error()); failErr != nil {
		logger.Error("failed to mark beat as failed", slog.String("error", failErr.Error()))
	}
	if saveErr := s.repo.Update(ctx, b, StatusProcessing); saveErr != nil {
		if errors.Is(saveErr, ErrBeatNotFound) {
			logger.Warn("beat deleted during upload")
			s.removeAudio(ctx, b.ID, b.SourceKey, PreviewKey(b.ID))
			return nil, saveErr
		}
		logger.Error("failed to save failed beat", slog.String("error", saveErr.Error()))
	}
	return b, err
}

func (s *Service) completeUpload(ctx context.Context, b *Beat, data []byte, logger *slog.Logger) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}

	sourceKey := b.SourceKey
	mime := mimetype.Detect(data)
	if _, err := s.store.Put(ctx, sourceKey, bytes.NewReader(data), int64(len(data)), mime.String()); err != nil {
		return fmt.Errorf("store source: %w", err)
	}
	logger.Debug("source stored", slog.String("key", sourceKey), slog.String("mime", mime.String()))

	asset, err := s.previews.Encode(data)
	if err != nil {
		return err
	}

	previewKey := PreviewKey(b.ID)
	url, err := s.store.Put(ctx, previewKey, bytes.NewReader(asset.Data), int64(len(asset.Data)), asset.ContentType)
	if err != nil {
		return fmt.Errorf("store preview: %w", err)
	}

	if err := b.MarkReady(previewKey, url, asset.Samples, asset.SampleRate); err != nil {
		return err
	}
	return s.repo.Update(ctx, b, StatusProcessing)
}

// ProcessUpload runs StartUpload and CompleteUpload in one call.
func (s *Service) ProcessUpload(ctx context.Context, id, producerID, filename string, data []byte) (*Beat, error) {
	b, err := s.StartUpload(ctx, id, producerID, filename)
	if err != nil {
		return nil, err
	}
	return s.CompleteUpload(ctx, b, data)
}

// DeleteBeat removes a beat and its stored audio.
func (s *Service) DeleteBeat(ctx context.Context, id, producerID string) error {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if producerID != "" && b.ProducerID != producerID {
		return ErrForbidden
	}

	s.removeAudio(ctx, id, b.SourceKey, b.PreviewKey)
	return s.repo.Delete(ctx, id)
}

// removeAudio deletes stored objects, logging failures.
func (s *Service) removeAudio(ctx context.Context, beatID string, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to delete beat audio",
				slog.String("beat_id", beatID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// QuoteCart prices the given beat licenses. Every beat must exist and be READY.
func (s *Service) QuoteCart(ctx context.Context, lines []CartLine) (pricing.CartQuote, error) {
	cart := pricing.NewCart()
	for _, line := range lines {
		b, err := s.repo.FindByID(ctx, line.BeatID)
		if err != nil {
			return pricing.CartQuote{}, fmt.Errorf("beat %s: %w", line.BeatID, err)
		}
		if !b.IsPurchasable() {
			return pricing.CartQuote{}, fmt.Errorf("beat %s: %w", line.BeatID, ErrPreviewNotReady)
		}
		item := pricing.Item{
			BeatID:   b.ID,
			License:  line.License,
			Tiers:    b.Tiers,
			Filename: DownloadFilename(b.ProducerID, b.Title, line.License, extension(b.SourceKey)),
		}
		if err := cart.Add(item); err != nil {
			return pricing.CartQuote{}, err
		}
	}
	return cart.Quote()
}

// PreviewURL returns a URL for the beat's preview. When the storage backend
// can sign URLs the result is signed and signed is true.
func (s *Service) PreviewURL(ctx context.Context, id string) (url string, signed bool, err error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", false, err
	}
	if b.GetStatus() != StatusReady || b.PreviewKey == "" {
		return "", false, ErrPreviewNotReady
	}

	if signer, ok := s.store.(storage.Signer); ok {
		u, err := signer.SignedURL(ctx, b.PreviewKey, s.signedURLTTL)
		if err != nil {
			return "", false, err
		}
		return u, true, nil
	}
	return b.PreviewURL, false, nil
}

// OpenPreview streams the stored preview.
func (s *Service) OpenPreview(ctx context.Context, id string) (io.ReadCloser, error) {
	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.GetStatus() != StatusReady || b.PreviewKey == "" {
		return nil, ErrPreviewNotReady
	}

	rc, _, err := s.store.Get(ctx, b.PreviewKey)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
