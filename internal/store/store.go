package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mcpgate/internal/trust"
)

var (
	ErrNotFound    = errors.New("STORE_NOT_FOUND")
	ErrDuplicate   = errors.New("STORE_DUPLICATE")
	ErrInvalid     = errors.New("STORE_INVALID")
	ErrPersistence = errors.New("STORE_PERSISTENCE")
)

type Options struct {
	// DatabaseURL selects Postgres through the pgx driver. Empty falls back to SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string
	Logger      *zap.Logger
}

// Store persists providers and scan results.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
	var (
		db  *gorm.DB
		err error
	)
	if opts.DatabaseURL == "" {
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path is required when database_url is empty", ErrPersistence)
		}
		logger.Info("database url not set, using embedded sqlite", zap.String("path", opts.SQLitePath))
		dsn := opts.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err = gorm.Open(sqlite.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite: %v", ErrPersistence, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB, err := sql.Open("pgx", opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: open postgres: %v", ErrPersistence, err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: open postgres: %v", ErrPersistence, err)
		}
		logger.Info("postgres store connected")
	}
	return New(db, logger)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Provider{}, &ScanRecord{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// CreateProvider assigns an id when missing. Source locations are unique.
func (s *Store) CreateProvider(ctx context.Context, p *Provider) error {
	if p.SourceLocation == "" {
		return fmt.Errorf("%w: provider source location is required", ErrInvalid)
	}
	if p.TrustLevel == trust.Internal && p.SourceLocation != trust.BuiltinSource {
		return fmt.Errorf("%w: INTERNAL trust is reserved for builtin providers, got %q", ErrInvalid, p.SourceLocation)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = trust.StatusPending
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Provider{}).Where("source_location = ?", p.SourceLocation).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: provider for %q already exists", ErrDuplicate, p.SourceLocation)
		}
		return tx.Create(p).Error
	})
	return s.wrap(err, "create provider")
}

func (s *Store) GetProvider(ctx context.Context, id string) (Provider, error) {
	var p Provider
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		return Provider{}, s.wrap(err, "provider "+id)
	}
	return p, nil
}

func (s *Store) FindBySource(ctx context.Context, location string) (Provider, error) {
	var p Provider
	err := s.db.WithContext(ctx).Where("source_location = ?", location).First(&p).Error
	if err != nil {
		return Provider{}, s.wrap(err, "provider for "+location)
	}
	return p, nil
}

// ListProviders returns providers ordered by name, optionally filtered by status.
func (s *Store) ListProviders(ctx context.Context, statuses ...trust.Status) ([]Provider, error) {
	q := s.db.WithContext(ctx).Order("name asc").Order("id asc")
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		q = q.Where("status IN ?", names)
	}
	var out []Provider
	if err := q.Find(&out).Error; err != nil {
		return nil, s.wrap(err, "list providers")
	}
	return out, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status trust.Status) error {
	res := s.db.WithContext(ctx).Model(&Provider{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return s.wrap(res.Error, "update status")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: provider %s", ErrNotFound, id)
	}
	return nil
}

// RefreshProvider writes status, metadata and tool names of a provider whose
// current status is one of from. It reports false when no such row exists and
// never inserts.
func (s *Store) RefreshProvider(ctx context.Context, p *Provider, from ...trust.Status) (bool, error) {
	if p.ID == "" {
		return false, fmt.Errorf("%w: provider id is required", ErrInvalid)
	}
	q := s.db.WithContext(ctx).Model(&Provider{}).Where("id = ?", p.ID)
	if len(from) > 0 {
		statuses := make([]string, 0, len(from))
		for _, st := range from {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}
	res := q.Updates(map[string]any{
		"status":     string(p.Status),
		"metadata":   p.Metadata,
		"tool_names": p.ToolNames,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return false, s.wrap(res.Error, "refresh provider")
	}
	return res.RowsAffected > 0, nil
}

// DeleteProvider removes a provider and its scan history.
func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("provider_id = ?", id).Delete(&ScanRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Provider{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: provider %s", ErrNotFound, id)
		}
		return nil
	})
	return s.wrap(err, "delete provider")
}

// RecordScan appends a scan result. Records are never updated afterwards.
func (s *Store) RecordScan(ctx context.Context, rec *ScanRecord) error {
	if rec.ProviderID == "" {
		return fmt.Errorf("%w: scan record without provider id", ErrInvalid)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = time.Now().UTC()
	}
	return s.wrap(s.db.WithContext(ctx).Create(rec).Error, "record scan")
}

// ScansFor returns scan history, newest first.
func (s *Store) ScansFor(ctx context.Context, providerID string) ([]ScanRecord, error) {
	var out []ScanRecord
	err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).
		Order("scanned_at desc").Find(&out).Error
	if err != nil {
		return nil, s.wrap(err, "list scans")
	}
	return out, nil
}

func (s *Store) LatestScan(ctx context.Context, providerID string) (ScanRecord, error) {
	var rec ScanRecord
	err := s.db.WithContext(ctx).Where("provider_id = ?", providerID).
		Order("scanned_at desc").First(&rec).Error
	if err != nil {
		return ScanRecord{}, s.wrap(err, "latest scan for "+providerID)
	}
	return rec, nil
}

func (s *Store) CountScans(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ScanRecord{}).Count(&n).Error; err != nil {
		return 0, s.wrap(err, "count scans")
	}
	return n, nil
}

func (s *Store) wrap(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate), errors.Is(err, ErrInvalid):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %s", ErrDuplicate, what)
	default:
		s.logger.Error("store operation failed", zap.String("op", what), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrPersistence, what, err)
	}
}
