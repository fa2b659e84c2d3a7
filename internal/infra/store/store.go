// Package store provides the SQL-backed module catalog.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// Supported database backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config represents database configuration.
type Config struct {
	Backend     string
	DSN         string
	AutoMigrate bool
	Debug       bool
}

// ModuleRecord is the persisted form of a module.
type ModuleRecord struct {
	ID        string        `gorm:"primaryKey;size:64"`
	Name      string        `gorm:"size:255;not null"`
	ImageRef  string        `gorm:"size:1024"`
	Premium   bool          `gorm:"not null;default:false"`
	Position  int           `gorm:"index"`
	Tracks    []TrackRecord `gorm:"foreignKey:ModuleID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler.
func (ModuleRecord) TableName() string { return "modules" }

// TrackRecord is the persisted form of a track. IDs are unique per module.
type TrackRecord struct {
	ModuleID     string `gorm:"primaryKey;size:64"`
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:255;not null"`
	MediaRef     string `gorm:"size:1024"`
	DurationMs   int64
	ThumbnailRef string `gorm:"size:1024"`
	Position     int    `gorm:"index"`
}

// TableName implements gorm's Tabler.
func (TrackRecord) TableName() string { return "tracks" }

// Store reads and writes the module catalog.
type Store struct {
	db *gorm.DB
}

// Connect establishes a gorm connection for the configured backend.
func Connect(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Backend {
	case BackendPostgres:
		dialector = postgres.Open(cfg.DSN)
	case BackendSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Newf("unknown database backend: %s", cfg.Backend)
	}

	mode := logger.Silent
	if cfg.Debug {
		mode = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(mode)})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: backend=%s", cfg.Backend)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// New wraps an open connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects and optionally migrates the schema.
func Open(cfg Config) (*Store, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	s := New(db)
	if cfg.AutoMigrate {
		if err := s.Migrate(); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates or updates the catalog tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&ModuleRecord{}, &TrackRecord{}); err != nil {
		return errors.Wrap(err, "failed to migrate catalog schema")
	}
	return nil
}

// FetchModules returns all modules with their tracks, both in position order.
func (s *Store) FetchModules(ctx context.Context) ([]module.Module, error) {
	var records []ModuleRecord
	err := s.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("position ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query modules")
	}

	modules := make([]module.Module, 0, len(records))
	for _, r := range records {
		modules = append(modules, r.toModule())
	}
	zlog.Debug().Msgf("store: fetched modules: count=%d", len(modules))
	return modules, nil
}

// SaveModule upserts a module and replaces its tracks.
func (s *Store) SaveModule(ctx context.Context, position int, m module.Module) error {
	rec := fromModule(position, m)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("module_id = ?", m.ID).Delete(&TrackRecord{}).Error; err != nil {
			return errors.Wrap(err, "failed to clear tracks")
		}
		tracks := rec.Tracks
		rec.Tracks = nil
		if err := tx.Save(&rec).Error; err != nil {
			return errors.Wrapf(err, "failed to save module: id=%s", m.ID)
		}
		if len(tracks) > 0 {
			if err := tx.Create(&tracks).Error; err != nil {
				return errors.Wrapf(err, "failed to save tracks: module_id=%s", m.ID)
			}
		}
		return nil
	})
}

// Close releases database resources.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r ModuleRecord) toModule() module.Module {
	tracks := make([]track.Track, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		tracks = append(tracks, track.Track{
			ID:           t.ID,
			ModuleID:     r.ID,
			Name:         t.Name,
			MediaRef:     t.MediaRef,
			Duration:     time.Duration(t.DurationMs) * time.Millisecond,
			ThumbnailRef: t.ThumbnailRef,
		})
	}
	return module.Module{
		ID:       r.ID,
		Name:     r.Name,
		ImageRef: r.ImageRef,
		Premium:  r.Premium,
		Tracks:   tracks,
	}
}

func fromModule(position int, m module.Module) ModuleRecord {
	rec := ModuleRecord{
		ID:       m.ID,
		Name:     m.Name,
		ImageRef: m.ImageRef,
		Premium:  m.Premium,
		Position: position,
	}
	for i, t := range m.Tracks {
		rec.Tracks = append(rec.Tracks, TrackRecord{
			ModuleID:     m.ID,
			ID:           t.ID,
			Name:         t.Name,
			MediaRef:     t.MediaRef,
			DurationMs:   t.Duration.Milliseconds(),
			ThumbnailRef: t.ThumbnailRef,
			Position:     i,
		})
	}
	return rec
}
