package repositories

import (
	"context"

	"schemagraph/internal/database"
)

// PostgresProviders hands out a SchemaRepository bound to the pool of the
// requested database.
type PostgresProviders struct {
	pools *database.PoolManager
}

func NewPostgresProviders(pools *database.PoolManager) *PostgresProviders {
	return &PostgresProviders{pools: pools}
}

func (p *PostgresProviders) Provider(ctx context.Context, db string) (*SchemaRepository, error) {
	pool, err := p.pools.Get(ctx, db)
	if err != nil {
		return nil, err
	}
	return NewSchemaRepository(pool), nil
}

type MySQLProviders struct {
	pools *database.SQLPoolManager
}

func NewMySQLProviders(pools *database.SQLPoolManager) *MySQLProviders {
	return &MySQLProviders{pools: pools}
}

func (p *MySQLProviders) Provider(ctx context.Context, db string) (*MySQLSchemaRepository, error) {
	conn, err := p.pools.Get(ctx, db)
	if err != nil {
		return nil, err
	}
	return NewMySQLSchemaRepository(conn), nil
}
