package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/i474232898/weather-records/internal/common"
	"github.com/i474232898/weather-records/internal/weather"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

var errEmptyLocation = errors.New("store: location must not be empty")

// updatableColumns are written by Update and SaveAll. ID never changes.
var updatableColumns = []string{"Location", "UpdatedAt", "Temperature", "Description", "Humidity"}

// GormStore implements weather.Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// Open connects to the database for driver/dsn and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(logger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm connection and migrates the schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&weather.Record{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate weather records: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the record with the given id.
func (s *GormStore) Get(ctx context.Context, id uint) (*weather.Record, error) {
	var rec weather.Record
	if err := s.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// FindByLocation returns the record stored for location.
func (s *GormStore) FindByLocation(ctx context.Context, location string) (*weather.Record, error) {
	var rec weather.Record
	if err := s.db.WithContext(ctx).Where("location = ?", location).First(&rec).Error; err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

// Locations returns the distinct stored locations in lexical order.
func (s *GormStore) Locations(ctx context.Context) ([]string, error) {
	var locations []string
	err := s.db.WithContext(ctx).
		Model(&weather.Record{}).
		Distinct().
		Order("location").
		Pluck("location", &locations).Error
	if err != nil {
		return nil, translate(err)
	}
	return locations, nil
}

// List returns every record ordered by id.
func (s *GormStore) List(ctx context.Context) ([]weather.Record, error) {
	var recs []weather.Record
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	return recs, nil
}

// Create inserts rec; gorm assigns rec.ID.
func (s *GormStore) Create(ctx context.Context, rec *weather.Record) error {
	if rec.Location == "" {
		return errEmptyLocation
	}
	return translate(s.db.WithContext(ctx).Create(rec).Error)
}

// Update writes rec over the stored row with the same id.
func (s *GormStore) Update(ctx context.Context, rec *weather.Record) error {
	return updateRecord(s.db.WithContext(ctx), rec)
}

// Delete removes rec by id.
func (s *GormStore) Delete(ctx context.Context, rec *weather.Record) error {
	res := s.db.WithContext(ctx).Delete(&weather.Record{}, rec.ID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return weather.ErrNotFound
	}
	return nil
}

// SaveAll applies the batch in one transaction. On failure nothing is
// committed and ids assigned to new records are reset.
func (s *GormStore) SaveAll(ctx context.Context, recs []*weather.Record) error {
	var inserted []*weather.Record

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range recs {
			if rec.ID != 0 {
				if err := updateRecord(tx, rec); err != nil {
					return err
				}
				continue
			}
			if rec.Location == "" {
				return errEmptyLocation
			}
			if err := tx.Create(rec).Error; err != nil {
				return translate(err)
			}
			inserted = append(inserted, rec)
		}
		return nil
	})
	if err != nil {
		for _, rec := range inserted {
			rec.ID = 0
		}
		return err
	}
	return nil
}

func updateRecord(db *gorm.DB, rec *weather.Record) error {
	if rec.Location == "" {
		return errEmptyLocation
	}
	res := db.Model(rec).Select(updatableColumns).Updates(rec)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return weather.ErrNotFound
	}
	return nil
}

// translate maps driver errors onto the weather package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return weather.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		common.ErrorHasAny(err, "UNIQUE constraint failed", "Duplicate entry"):
		return weather.ErrDuplicateLocation
	default:
		return fmt.Errorf("store: %w", err)
	}
}

// slogWriter adapts slog to gorm's logger.Writer.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn(fmt.Sprintf(format, args...))
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	if logger == nil {
		logger = slog.Default()
	}
	return gormlogger.New(
		slogWriter{logger: logger.With("component", "gorm")},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
