package beat

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/beatstore-api/internal/pricing"
)

func TestBeatRecord_RoundTrip(t *testing.T) {
	b := NewWithID("b1", "p1", "Night Drive")
	b.Genre = "trap"
	b.BPM = 140
	b.Tiers = pricing.Tiers{Base: 2999, Exclusive: 49999}
	require.NoError(t, b.StartProcessing("beats/b1/source.wav"))
	require.NoError(t, b.MarkReady("beats/b1/preview.mp3", "/files/beats/b1/preview.mp3", 13230, 44100))

	rec := toRecord(b)
	assert.Equal(t, "READY", rec.Status)
	assert.Equal(t, int64(2999), rec.PriceBase)
	require.NotNil(t, rec.ReadyAt)

	got := rec.toBeat()
	assert.Equal(t, b.Clone(), got)
}

func TestBeatRecord_PendingHasNoReadyAt(t *testing.T) {
	rec := toRecord(NewWithID("b1", "p1", "t"))
	assert.Nil(t, rec.ReadyAt)
	assert.True(t, rec.toBeat().ReadyAt.IsZero())
	assert.Equal(t, "beats", rec.TableName())
}

// TestGormRepository_MySQL runs against a real MySQL server when
// BEATSTORE_TEST_MYSQL_DSN is set.
func TestGormRepository_MySQL(t *testing.T) {
	dsn := os.Getenv("BEATSTORE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("BEATSTORE_TEST_MYSQL_DSN not set, skipping MySQL test")
	}

	db, err := OpenMySQL(dsn, nil)
	require.NoError(t, err)

	repo := NewGormRepository(db)
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	b := New("producer-"+NewID()[:8], "Night Drive")
	b.Genre = "trap"
	b.Tiers = pricing.Tiers{Base: 2999}
	b.CreatedAt = b.CreatedAt.Truncate(time.Second)
	require.NoError(t, repo.Save(ctx, b))
	t.Cleanup(func() { _ = repo.Delete(context.Background(), b.ID) })

	found, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Title, found.Title)
	assert.Equal(t, b.Tiers, found.Tiers)
	assert.Equal(t, StatusPending, found.Status)

	require.NoError(t, b.StartProcessing("beats/x/source.wav"))
	require.NoError(t, repo.Update(ctx, b, StatusPending))
	assert.ErrorIs(t, repo.Update(ctx, b, StatusPending), ErrStaleUpdate)

	list, err := repo.List(ctx, Filter{ProducerID: b.ProducerID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, StatusProcessing, list[0].Status)

	require.NoError(t, repo.Delete(ctx, b.ID))
	_, err = repo.FindByID(ctx, b.ID)
	assert.True(t, errors.Is(err, ErrBeatNotFound))
	assert.ErrorIs(t, repo.Delete(ctx, b.ID), ErrBeatNotFound)
	assert.ErrorIs(t, repo.Update(ctx, b, StatusProcessing), ErrBeatNotFound)
}
