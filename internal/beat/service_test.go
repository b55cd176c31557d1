package beat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/beatstore-api/internal/preview"
	"github.com/maauso/beatstore-api/internal/pricing"
	"github.com/maauso/beatstore-api/internal/storage"
)

// MockPreviewEncoder is a mock implementation of PreviewEncoder.
type MockPreviewEncoder struct {
	mock.Mock
}

func (m *MockPreviewEncoder) Encode(source []byte) (*preview.Asset, error) {
	args := m.Called(source)
	if a := args.Get(0); a != nil {
		return a.(*preview.Asset), args.Error(1)
	}
	return nil, args.Error(1)
}

// signingStorage adds Signer to LocalStorage.
type signingStorage struct {
	*storage.LocalStorage
}

func (s signingStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key + "?ttl=" + ttl.String(), nil
}

func newTestService(t *testing.T, enc PreviewEncoder, opts ...ServiceOption) (*Service, *MemoryRepository, *storage.LocalStorage) {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)
	repo := NewMemoryRepository()
	return NewService(repo, store, enc, nil, opts...), repo, store
}

func testAsset() *preview.Asset {
	return &preview.Asset{
		Data:          []byte("ID3-less mp3 bytes"),
		ContentType:   preview.ContentType,
		SampleRate:    44100,
		Samples:       13230,
		SourceSamples: 44100,
	}
}

func TestService_CreateBeat(t *testing.T) {
	svc, repo, _ := newTestService(t, &MockPreviewEncoder{})
	ctx := context.Background()

	b, err := svc.CreateBeat(ctx, CreateInput{
		ProducerID: "p1",
		Title:      "Night Drive",
		Genre:      "trap",
		BPM:        140,
		Tiers:      pricing.Tiers{Base: 2999},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, b.Status)
	saved, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 140, saved.BPM)
	assert.Equal(t, int64(2999), saved.Tiers.Base)
}

func TestService_ProcessUpload_Success(t *testing.T) {
	enc := &MockPreviewEncoder{}
	svc, repo, store := newTestService(t, enc)
	ctx := context.Background()

	b, err := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
	require.NoError(t, err)

	source := []byte("RIFF....WAVEfmt source audio")
	enc.On("Encode", source).Return(testAsset(), nil).Once()

	got, err := svc.ProcessUpload(ctx, b.ID, "p1", "beat.wav", source)
	require.NoError(t, err)
	enc.AssertExpectations(t)

	assert.Equal(t, StatusReady, got.Status)
	assert.Equal(t, "beats/"+b.ID+"/source.wav", got.SourceKey)
	assert.Equal(t, "beats/"+b.ID+"/preview.mp3", got.PreviewKey)
	assert.Equal(t, "/files/beats/"+b.ID+"/preview.mp3", got.PreviewURL)
	assert.Equal(t, 13230, got.PreviewSamples)

	saved, _ := repo.FindByID(ctx, b.ID)
	assert.Equal(t, StatusReady, saved.Status)

	rc, contentType, err := store.Get(ctx, got.PreviewKey)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, testAsset().Data, data)
	assert.Equal(t, "audio/mp3", contentType)

	src, _, err := store.Get(ctx, got.SourceKey)
	require.NoError(t, err)
	_ = src.Close()
}

func TestService_ProcessUpload_PreviewFailureMarksFailed(t *testing.T) {
	enc := &MockPreviewEncoder{}
	svc, repo, _ := newTestService(t, enc)
	ctx := context.Background()

	b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})

	decodeErr := &preview.DecodeError{Err: errors.New("not audio")}
	enc.On("Encode", mock.Anything).Return(nil, decodeErr).Once()

	_, err := svc.ProcessUpload(ctx, b.ID, "p1", "beat.wav", []byte("garbage"))
	var target *preview.DecodeError
	require.ErrorAs(t, err, &target)

	saved, _ := repo.FindByID(ctx, b.ID)
	assert.Equal(t, StatusFailed, saved.Status)
	assert.Contains(t, saved.Error, "not audio")
	assert.False(t, saved.IsPurchasable())

	// A later upload that succeeds unblocks the beat.
	enc.On("Encode", mock.Anything).Return(testAsset(), nil).Once()
	got, err := svc.ProcessUpload(ctx, b.ID, "p1", "beat.mp3", []byte("good audio"))
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
	assert.Empty(t, got.Error)
}

func TestService_ProcessUpload_Errors(t *testing.T) {
	enc := &MockPreviewEncoder{}
	svc, _, _ := newTestService(t, enc)
	ctx := context.Background()

	b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.ProcessUpload(ctx, "missing", "p1", "a.wav", []byte("x"))
		assert.ErrorIs(t, err, ErrBeatNotFound)
	})

	t.Run("other producer", func(t *testing.T) {
		_, err := svc.ProcessUpload(ctx, b.ID, "p2", "a.wav", []byte("x"))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("empty upload", func(t *testing.T) {
		_, err := svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", nil)
		assert.ErrorIs(t, err, ErrEmptyUpload)
	})

	t.Run("ready beat cannot be re-uploaded", func(t *testing.T) {
		enc.On("Encode", mock.Anything).Return(testAsset(), nil).Once()
		_, err := svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", []byte("audio"))
		require.NoError(t, err)

		_, err = svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", []byte("audio"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestService_StartUpload_BlocksConcurrentUpload(t *testing.T) {
	svc, _, _ := newTestService(t, &MockPreviewEncoder{})
	ctx := context.Background()

	b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})

	_, err := svc.StartUpload(ctx, b.ID, "p1", "a.wav")
	require.NoError(t, err)

	_, err = svc.StartUpload(ctx, b.ID, "p1", "b.wav")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// slowRepository widens the read-then-write window of StartUpload.
type slowRepository struct {
	*MemoryRepository
}

func (r slowRepository) FindByID(ctx context.Context, id string) (*Beat, error) {
	time.Sleep(5 * time.Millisecond)
	return r.MemoryRepository.FindByID(ctx, id)
}

func TestService_StartUpload_OneConcurrentClaimWins(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)
	svc := NewService(slowRepository{NewMemoryRepository()}, store, &MockPreviewEncoder{}, nil)
	ctx := context.Background()

	b, err := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
	require.NoError(t, err)

	const uploads = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StartUpload(ctx, b.ID, "p1", "a.wav")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInvalidTransition):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, uploads-1, conflicts)
}

func TestService_CompleteUpload_BeatDeletedMeanwhile(t *testing.T) {
	t.Run("preview encoded", func(t *testing.T) {
		enc := &MockPreviewEncoder{}
		enc.On("Encode", mock.Anything).Return(testAsset(), nil)
		svc, repo, store := newTestService(t, enc)
		ctx := context.Background()

		b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
		claimed, err := svc.StartUpload(ctx, b.ID, "p1", "a.wav")
		require.NoError(t, err)
		require.NoError(t, svc.DeleteBeat(ctx, b.ID, "p1"))

		got, err := svc.CompleteUpload(ctx, claimed, []byte("audio"))
		assert.ErrorIs(t, err, ErrBeatNotFound)
		assert.Nil(t, got)

		_, err = repo.FindByID(ctx, b.ID)
		assert.ErrorIs(t, err, ErrBeatNotFound)
		_, _, err = store.Get(ctx, claimed.SourceKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, _, err = store.Get(ctx, PreviewKey(b.ID))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("preview failed", func(t *testing.T) {
		enc := &MockPreviewEncoder{}
		enc.On("Encode", mock.Anything).Return(nil, errors.New("boom"))
		svc, repo, store := newTestService(t, enc)
		ctx := context.Background()

		b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
		claimed, err := svc.StartUpload(ctx, b.ID, "p1", "a.wav")
		require.NoError(t, err)
		require.NoError(t, svc.DeleteBeat(ctx, b.ID, "p1"))

		_, err = svc.CompleteUpload(ctx, claimed, []byte("audio"))
		assert.ErrorIs(t, err, ErrBeatNotFound)

		_, err = repo.FindByID(ctx, b.ID)
		assert.ErrorIs(t, err, ErrBeatNotFound)
		_, _, err = store.Get(ctx, claimed.SourceKey)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestService_PreviewURL(t *testing.T) {
	enc := &MockPreviewEncoder{}
	enc.On("Encode", mock.Anything).Return(testAsset(), nil)
	ctx := context.Background()

	t.Run("not ready", func(t *testing.T) {
		svc, _, _ := newTestService(t, enc)
		b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})

		_, _, err := svc.PreviewURL(ctx, b.ID)
		assert.ErrorIs(t, err, ErrPreviewNotReady)
	})

	t.Run("unsigned backend", func(t *testing.T) {
		svc, _, _ := newTestService(t, enc)
		b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
		_, err := svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", []byte("audio"))
		require.NoError(t, err)

		url, signed, err := svc.PreviewURL(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, signed)
		assert.Equal(t, "/files/beats/"+b.ID+"/preview.mp3", url)

		rc, err := svc.OpenPreview(ctx, b.ID)
		require.NoError(t, err)
		_ = rc.Close()
	})

	t.Run("signing backend", func(t *testing.T) {
		local, err := storage.NewLocalStorage(t.TempDir(), "")
		require.NoError(t, err)
		svc := NewService(NewMemoryRepository(), signingStorage{local}, enc, nil, WithSignedURLTTL(time.Minute))

		b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
		_, err = svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", []byte("audio"))
		require.NoError(t, err)

		url, signed, err := svc.PreviewURL(ctx, b.ID)
		require.NoError(t, err)
		assert.True(t, signed)
		assert.Equal(t, "https://signed.example/beats/"+b.ID+"/preview.mp3?ttl=1m0s", url)
	})
}

func TestService_QuoteCart(t *testing.T) {
	enc := &MockPreviewEncoder{}
	enc.On("Encode", mock.Anything).Return(testAsset(), nil)
	svc, _, _ := newTestService(t, enc)
	ctx := context.Background()

	ready, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "a", Tiers: pricing.Tiers{Base: 2000}})
	_, err := svc.ProcessUpload(ctx, ready.ID, "p1", "a.wav", []byte("audio"))
	require.NoError(t, err)

	pending, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "b", Tiers: pricing.Tiers{Base: 2000}})

	q, err := svc.QuoteCart(ctx, []CartLine{
		{BeatID: ready.ID, License: pricing.LicenseBasic},
		{BeatID: ready.ID, License: pricing.LicenseExclusive},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000+6000), q.Total)
	assert.True(t, q.Estimated)
	require.Len(t, q.Lines, 2)
	assert.Equal(t, "p1_a_basic.wav", q.Lines[0].Filename)
	assert.Equal(t, "p1_a_exclusive.wav", q.Lines[1].Filename)

	_, err = svc.QuoteCart(ctx, []CartLine{{BeatID: pending.ID, License: pricing.LicenseBasic}})
	assert.ErrorIs(t, err, ErrPreviewNotReady)

	_, err = svc.QuoteCart(ctx, []CartLine{{BeatID: "missing", License: pricing.LicenseBasic}})
	assert.ErrorIs(t, err, ErrBeatNotFound)

	_, err = svc.QuoteCart(ctx, []CartLine{
		{BeatID: ready.ID, License: pricing.LicenseBasic},
		{BeatID: ready.ID, License: pricing.LicenseBasic},
	})
	assert.ErrorIs(t, err, pricing.ErrDuplicateItem)
}

func TestService_DeleteBeat(t *testing.T) {
	enc := &MockPreviewEncoder{}
	enc.On("Encode", mock.Anything).Return(testAsset(), nil)
	svc, repo, store := newTestService(t, enc)
	ctx := context.Background()

	b, _ := svc.CreateBeat(ctx, CreateInput{ProducerID: "p1", Title: "t"})
	got, err := svc.ProcessUpload(ctx, b.ID, "p1", "a.wav", []byte("audio"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteBeat(ctx, b.ID, "p2"), ErrForbidden)
	require.NoError(t, svc.DeleteBeat(ctx, b.ID, "p1"))

	_, err = repo.FindByID(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBeatNotFound)
	_, _, err = store.Get(ctx, got.PreviewKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
