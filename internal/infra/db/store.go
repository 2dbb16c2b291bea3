package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"contractseal/internal/config"
	"contractseal/internal/domain"
	"contractseal/internal/usecase"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ usecase.UnitOfWork = (*Store)(nil)

type Store struct {
	DB    *gorm.DB
	clock func() time.Time
}

// NewStore returns a Store with a nil DB when POSTGRES_DSN is unset; callers
// check Enabled and fall back to the in-memory store.
func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		slog.Warn("POSTGRES_DSN not set; running without a database")
		return &Store{}, nil
	}
	gdb, err := Open(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return New(gdb, nil), nil
}

func Open(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return gdb, nil
}

func New(gdb *gorm.DB, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{DB: gdb, clock: clock}
}

func (s *Store) Enabled() bool {
	return s != nil && s.DB != nil
}

// Migrate applies the embedded SQL files in name order. Every statement is
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sqlBytes, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if err := s.DB.WithContext(ctx).Exec(string(sqlBytes)).Error; err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx usecase.Tx) error) error {
	if !s.Enabled() {
		return errDBUnavailable
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormTx{db: tx, clock: s.clock})
	})
}

func (s *Store) GetContract(ctx context.Context, contractID string) (*domain.Contract, error) {
	if !s.Enabled() {
		return nil, errDBUnavailable
	}
	return contractRepo{db: s.DB, clock: s.clock}.Get(ctx, contractID)
}

func (s *Store) FindSignatures(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error) {
	if !s.Enabled() {
		return nil, errDBUnavailable
	}
	return signatureRepo{db: s.DB}.FindByHash(ctx, contractID, hash)
}

func (s *Store) ListSignatures(ctx context.Context, contractID string) ([]domain.SignatureRecord, error) {
	if !s.Enabled() {
		return nil, errDBUnavailable
	}
	return signatureRepo{db: s.DB}.ListByContract(ctx, contractID)
}

func (s *Store) ListArtifacts(ctx context.Context, contractID string) ([]domain.ContractArtifact, error) {
	if !s.Enabled() {
		return nil, errDBUnavailable
	}
	return artifactRepo{db: s.DB, clock: s.clock}.ListByContract(ctx, contractID)
}

type gormTx struct {
	db    *gorm.DB
	clock func() time.Time
}

func (t gormTx) Contracts() usecase.ContractRepository {
	return contractRepo{db: t.db, clock: t.clock}
}

func (t gormTx) Signatures() usecase.SignatureRepository {
	return signatureRepo{db: t.db}
}

func (t gormTx) Artifacts() usecase.ArtifactRepository {
	return artifactRepo{db: t.db, clock: t.clock}
}
