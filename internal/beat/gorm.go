package beat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/maauso/beatstore-api/internal/pricing"
)

// Compile-time check that GormRepository implements Repository.
var _ Repository = (*GormRepository)(nil)

// beatRecord is the database row for a Beat.
type beatRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ProducerID     string    `gorm:"size:64;index;not null"`
	Title          string    `gorm:"size:200;not null"`
	Genre          string    `gorm:"size:50;index"`
	BPM            int       `gorm:"column:bpm"`
	PriceBase      int64     `gorm:"default:0"`
	PriceBasic     int64     `gorm:"default:0"`
	PricePremium   int64     `gorm:"default:0"`
	PriceExclusive int64     `gorm:"default:0"`
	Status         string    `gorm:"size:20;index;not null"`
	Error          string    `gorm:"type:text"`
	SourceKey      string    `gorm:"size:255"`
	PreviewKey     string    `gorm:"size:255"`
	PreviewURL     string    `gorm:"size:1024"`
	PreviewSamples int       `gorm:"default:0"`
	SampleRate     int       `gorm:"default:0"`
	CreatedAt      time.Time `gorm:"index"`
	UpdatedAt      time.Time
	ReadyAt        *time.Time
}

// TableName implements gorm's tabler interface.
func (beatRecord) TableName() string {
	return "beats"
}

func toRecord(b *Beat) beatRecord {
	c := b.Clone()
	rec := beatRecord{
		ID:             c.ID,
		ProducerID:     c.ProducerID,
		Title:          c.Title,
		Genre:          c.Genre,
		BPM:            c.BPM,
		PriceBase:      c.Tiers.Base,
		PriceBasic:     c.Tiers.Basic,
		PricePremium:   c.Tiers.Premium,
		PriceExclusive: c.Tiers.Exclusive,
		Status:         string(c.Status),
		Error:          c.Error,
		SourceKey:      c.SourceKey,
		PreviewKey:     c.PreviewKey,
		PreviewURL:     c.PreviewURL,
		PreviewSamples: c.PreviewSamples,
		SampleRate:     c.SampleRate,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if !c.ReadyAt.IsZero() {
		readyAt := c.ReadyAt
		rec.ReadyAt = &readyAt
	}
	return rec
}

func (rec beatRecord) toBeat() *Beat {
	b := &Beat{
		ID:         rec.ID,
		ProducerID: rec.ProducerID,
		Title:      rec.Title,
		Genre:      rec.Genre,
		BPM:        rec.BPM,
		Tiers: pricing.Tiers{
			Base:      rec.PriceBase,
			Basic:     rec.PriceBasic,
			Premium:   rec.PricePremium,
			Exclusive: rec.PriceExclusive,
		},
		Status:         Status(rec.Status),
		Error:          rec.Error,
		SourceKey:      rec.SourceKey,
		PreviewKey:     rec.PreviewKey,
		PreviewURL:     rec.PreviewURL,
		PreviewSamples: rec.PreviewSamples,
		SampleRate:     rec.SampleRate,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.ReadyAt != nil {
		b.ReadyAt = *rec.ReadyAt
	}
	return b
}

// GormRepository implements Repository on MySQL through gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a repository on db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// OpenMySQL connects to MySQL using dsn, e.g.
// "user:pass@tcp(localhost:3306)/beatstore?charset=utf8mb4&parseTime=True&loc=UTC".
// SQL logging goes to logger at debug level.
func OpenMySQL(dsn string, log *slog.Logger) (*gorm.DB, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.New(slogWriter{log}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// slogWriter adapts slog to gorm's logger.Writer.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Warn(fmt.Sprintf(format, args...), slog.String("component", "gorm"))
}

// Migrate creates or updates the beats table.
func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&beatRecord{}); err != nil {
		return fmt.Errorf("migrate beats: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts the beat row.
func (r *GormRepository) Save(ctx context.Context, b *Beat) error {
	rec := toRecord(b)
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save beat %s: %w", rec.ID, err)
	}
	return nil
}

// Update writes the mutable columns of b with a status guard in the WHERE
// clause, so two callers racing from the same status cannot both succeed.
func (r *GormRepository) Update(ctx context.Context, b *Beat, from Status) error {
	rec := toRecord(b)
	res := r.db.WithContext(ctx).Model(&beatRecord{}).
		Where("id = ? AND status = ?", rec.ID, string(from)).
		Updates(map[string]any{
			"title":           rec.Title,
			"genre":           rec.Genre,
			"bpm":             rec.BPM,
			"price_base":      rec.PriceBase,
			"price_basic":     rec.PriceBasic,
			"price_premium":   rec.PricePremium,
			"price_exclusive": rec.PriceExclusive,
			"status":          rec.Status,
			"error":           rec.Error,
			"source_key":      rec.SourceKey,
			"preview_key":     rec.PreviewKey,
			"preview_url":     rec.PreviewURL,
			"preview_samples": rec.PreviewSamples,
			"sample_rate":     rec.SampleRate,
			"updated_at":      rec.UpdatedAt,
			"ready_at":        rec.ReadyAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update beat %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&beatRecord{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("update beat %s: %w", rec.ID, err)
	}
	if n == 0 {
		return ErrBeatNotFound
	}
	return ErrStaleUpdate
}

// FindByID loads one beat.
func (r *GormRepository) FindByID(ctx context.Context, id string) (*Beat, error) {
	var rec beatRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBeatNotFound
		}
		return nil, fmt.Errorf("find beat %s: %w", id, err)
	}
	return rec.toBeat(), nil
}

// List returns matching beats, newest first.
func (r *GormRepository) List(ctx context.Context, f Filter) ([]*Beat, error) {
	q := r.db.WithContext(ctx).Model(&beatRecord{})
	if f.ProducerID != "" {
		q = q.Where("producer_id = ?", f.ProducerID)
	}
	if f.Genre != "" {
		q = q.Where("genre = ?", f.Genre)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		// MySQL rejects OFFSET without LIMIT.
		if f.Limit <= 0 {
			q = q.Limit(math.MaxInt32)
		}
		q = q.Offset(f.Offset)
	}

	var recs []beatRecord
	if err := q.Order("created_at DESC").Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list beats: %w", err)
	}

	beats := make([]*Beat, 0, len(recs))
	for _, rec := range recs {
		beats = append(beats, rec.toBeat())
	}
	return beats, nil
}

// Delete removes the beat row.
func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&beatRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete beat %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBeatNotFound
	}
	return nil
}
