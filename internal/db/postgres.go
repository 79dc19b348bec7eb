package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bohemiyan/grc-rbac/internal/config"
)

// PostgresDB wraps both sql.DB and gorm.DB
type PostgresDB struct {
	DB     *sql.DB
	GormDB *gorm.DB
}

// NewPostgresDB opens a lib/pq handle for health checks and a gorm handle for the stores.
func NewPostgresDB(ctx context.Context, cfg *config.Config) (*PostgresDB, error) {
	dsn := cfg.PostgresDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &PostgresDB{DB: db, GormDB: gormDB}, nil
}

// Ping checks the database is reachable.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.DB.PingContext(ctx)
}

func (p *PostgresDB) Close() error {
	if err := p.DB.Close(); err != nil {
		return fmt.Errorf("failed to close sql.DB: %w", err)
	}

	sqlDB, err := p.GormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close GORM sql.DB: %w", err)
	}

	return nil
}
