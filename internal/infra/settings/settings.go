// Package settings provides persisted user settings backed by sqlite.
package settings

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Well-known keys.
const (
	KeyLanguage            = "language"
	KeyRegion              = "region"
	KeyHasSelectedLanguage = "has_selected_language"
)

// Defaults returned when a key was never set.
const (
	DefaultLanguage = "en"
	DefaultRegion   = "US"
)

// gooseMu guards goose's package-level configuration.
var gooseMu sync.Mutex

type row struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Store is a key/value settings store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens the sqlite database at path and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open settings database: path=%s", path)
	}
	// Single connection: sqlite has one writer and :memory: is per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	zlog.Debug().Msgf("settings: opened: path=%s", path)
	return s, nil
}

func (s *Store) migrate() error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "failed to set migration dialect")
	}
	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return errors.Wrap(err, "failed to apply settings migrations")
	}
	return nil
}

// Get returns the value for key. ok is false when the key is unset.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	var r row
	err = s.db.GetContext(ctx, &r, `SELECT key, value FROM settings WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read setting: key=%s", key)
	}
	return r.Value, true, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.set(ctx, s.db, key, value)
}

// Delete removes key. Deleting an unset key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "failed to delete setting: key=%s", key)
	}
	return nil
}

// All returns every stored setting.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings ORDER BY key`); err != nil {
		return nil, errors.Wrap(err, "failed to list settings")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Language returns the selected language or DefaultLanguage.
func (s *Store) Language(ctx context.Context) (string, error) {
	return s.getOr(ctx, KeyLanguage, DefaultLanguage)
}

// SetLanguage stores the language and marks it as explicitly selected.
func (s *Store) SetLanguage(ctx context.Context, language string) error {
	if language == "" {
		return errors.New("language must not be empty")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.set(ctx, tx, KeyLanguage, language); err != nil {
		return err
	}
	if err := s.set(ctx, tx, KeyHasSelectedLanguage, strconv.FormatBool(true)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit language")
	}
	zlog.Info().Msgf("settings: language selected: language=%s", language)
	return nil
}

// HasSelectedLanguage reports whether the user picked a language.
func (s *Store) HasSelectedLanguage(ctx context.Context) (bool, error) {
	v, err := s.getOr(ctx, KeyHasSelectedLanguage, "false")
	if err != nil {
		return false, err
	}
	selected, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrapf(err, "invalid setting: key=%s value=%s", KeyHasSelectedLanguage, v)
	}
	return selected, nil
}

// Region returns the selected region or DefaultRegion.
func (s *Store) Region(ctx context.Context) (string, error) {
	return s.getOr(ctx, KeyRegion, DefaultRegion)
}

// SetRegion stores the region.
func (s *Store) SetRegion(ctx context.Context, region string) error {
	if region == "" {
		return errors.New("region must not be empty")
	}
	return s.Set(ctx, KeyRegion, region)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getOr(ctx context.Context, key, fallback string) (string, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}

func (s *Store) set(ctx context.Context, exec sqlx.ExecerContext, key, value string) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to write setting: key=%s", key)
	}
	return nil
}
