package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"schemagraph/internal/config"
)

const healthCheckTimeout = 2 * time.Second

// PoolManager keeps one pgx pool per database on the target server. Pools
// are created on first use and recreated when a health check fails.
type PoolManager struct {
	cfg    config.DatabaseConfig
	opts   PoolOptions
	logger *zap.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

func NewPoolManager(cfg config.DatabaseConfig, logger *zap.Logger) *PoolManager {
	return &PoolManager{
		cfg:    cfg,
		opts:   DefaultPoolOptions,
		logger: logger,
		pools:  make(map[string]*pgxpool.Pool),
	}
}

// Get returns the pool for database, creating it when needed.
func (m *PoolManager) Get(ctx context.Context, database string) (*pgxpool.Pool, error) {
	if database == "" {
		database = m.cfg.Database
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if pool, ok := m.pools[database]; ok {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		m.logger.Warn("pool unhealthy, recreating", zap.String("database", database), zap.Error(err))
		pool.Close()
		delete(m.pools, database)
	}

	m.logger.Info("opening target pool",
		zap.String("host", m.cfg.Host),
		zap.String("port", m.cfg.Port),
		zap.String("database", database),
	)
	pool, err := Connect(ctx, PostgresDSN(m.cfg, database), m.opts)
	if err != nil {
		return nil, fmt.Errorf("connect to database %q: %w", database, err)
	}
	m.pools[database] = pool
	return pool, nil
}

func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, pool := range m.pools {
		pool.Close()
		delete(m.pools, name)
	}
	m.logger.Info("target pools closed")
}

// MySQLDSN formats a go-sql-driver DSN for database on the server in cfg.
func MySQLDSN(cfg config.DatabaseConfig, database string) string {
	if database == "" {
		database = cfg.Database
	}
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + cfg.Port
	mc.DBName = database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// SQLPoolManager is the database/sql counterpart of PoolManager, used for
// MySQL targets.
type SQLPoolManager struct {
	cfg    config.DatabaseConfig
	logger *zap.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewSQLPoolManager(cfg config.DatabaseConfig, logger *zap.Logger) *SQLPoolManager {
	return &SQLPoolManager{
		cfg:    cfg,
		logger: logger,
		dbs:    make(map[string]*sql.DB),
	}
}

func (m *SQLPoolManager) Get(ctx context.Context, database string) (*sql.DB, error) {
	if database == "" {
		database = m.cfg.Database
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[database]; ok {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		m.logger.Warn("mysql pool unhealthy, recreating", zap.String("database", database), zap.Error(err))
		db.Close()
		delete(m.dbs, database)
	}

	db, err := sql.Open("mysql", MySQLDSN(m.cfg, database))
	if err != nil {
		return nil, fmt.Errorf("mysql: open %q: %w", database, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping %q: %w", database, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	m.dbs[database] = db
	return db, nil
}

func (m *SQLPoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, db := range m.dbs {
		db.Close()
		delete(m.dbs, name)
	}
}
