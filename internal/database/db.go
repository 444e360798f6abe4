package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"schemagraph/internal/config"
)

// PostgresDSN builds a postgres:// URL for cfg, targeting database instead of
// cfg.Database when database is not empty.
func PostgresDSN(cfg config.DatabaseConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	// url.UserPassword escapes credentials with reserved characters
	userInfo := url.UserPassword(cfg.Username, cfg.Password)
	return fmt.Sprintf(
		"postgres://%s@%s:%s/%s?sslmode=disable",
		userInfo.String(),
		cfg.Host,
		cfg.Port,
		url.PathEscape(database),
	)
}

type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

var DefaultPoolOptions = PoolOptions{
	MaxConns:        25,
	MinConns:        0,
	MaxConnLifetime: 5 * time.Minute,
	MaxConnIdleTime: 1 * time.Minute,
}

// Connect opens a pgx pool and pings it.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MinConns = opts.MinConns
	poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	poolCfg.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// ControlPlane bundles the connections to the service's own database: a pgx
// pool for migrations and history, and gorm for the context store.
type ControlPlane struct {
	Pool *pgxpool.Pool
	Gorm *gorm.DB
}

func ConnectControlPlane(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*ControlPlane, error) {
	dsn := PostgresDSN(cfg, "")
	logger.Info("connecting to control-plane database",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	pool, err := Connect(ctx, dsn, PoolOptions{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 1 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("control plane: %w", err)
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("control plane: failed to open gorm: %w", err)
	}

	return &ControlPlane{Pool: pool, Gorm: gdb}, nil
}

func (c *ControlPlane) Close() {
	if c == nil {
		return
	}
	if sqlDB, err := c.Gorm.DB(); err == nil {
		sqlDB.Close()
	}
	c.Pool.Close()
}
