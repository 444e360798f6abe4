package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"schemagraph/internal/models"
	"schemagraph/internal/repositories"
	"schemagraph/internal/signals"
)

var (
	ErrDatabaseRequired = errors.New("database name is required")
	ErrSchemaRequired   = errors.New("schema name is required")
)

// ContextStore persists the active selection.
type ContextStore interface {
	Load(ctx context.Context) (models.ActiveContext, error)
	Save(ctx context.Context, active models.ActiveContext) error
}

// ContextService owns the dashboard's active database and schema. Signals
// carry no payload, so subscribers read the new values from Current.
type ContextService struct {
	store     ContextStore
	publisher signals.Publisher
	logger    *zap.Logger

	// schemaIsDatabase is set for engines where a database has exactly one
	// schema named after it.
	schemaIsDatabase bool

	mu     sync.RWMutex
	active models.ActiveContext
}

type ContextOption func(*ContextService)

// WithSchemaPerDatabase makes SelectDatabase default the schema to the new
// database name, as on MySQL where the two are the same thing.
func WithSchemaPerDatabase() ContextOption {
	return func(s *ContextService) {
		s.schemaIsDatabase = true
	}
}

// NewContextService restores the last saved selection, falling back to
// initial when the store is empty.
func NewContextService(ctx context.Context, store ContextStore, publisher signals.Publisher, initial models.ActiveContext, logger *zap.Logger, opts ...ContextOption) (*ContextService, error) {
	s := &ContextService{store: store, publisher: publisher, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	saved, err := store.Load(ctx)
	switch {
	case err == nil:
		s.active = saved
		logger.Info("restored active context",
			zap.String("database", saved.Database),
			zap.String("schema", saved.Schema),
		)
	case errors.Is(err, repositories.ErrContextNotFound):
		if initial.UpdatedAt.IsZero() {
			initial.UpdatedAt = time.Now()
		}
		s.active = initial
		if err := store.Save(ctx, initial); err != nil {
			return nil, fmt.Errorf("failed to save initial context: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load active context: %w", err)
	}

	return s, nil
}

func (s *ContextService) Current() models.ActiveContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SelectDatabase switches the active database and publishes
// database-changed. An empty schema keeps the current one, or follows the
// database name under WithSchemaPerDatabase.
func (s *ContextService) SelectDatabase(ctx context.Context, database, schema string) (models.ActiveContext, error) {
	database = strings.TrimSpace(database)
	if database == "" {
		return models.ActiveContext{}, ErrDatabaseRequired
	}

	active, err := s.update(ctx, func(a *models.ActiveContext) {
		a.Database = database
		switch schema = strings.TrimSpace(schema); {
		case schema != "":
			a.Schema = schema
		case s.schemaIsDatabase:
			a.Schema = database
		}
	})
	if err != nil {
		return models.ActiveContext{}, err
	}

	s.publisher.Publish(signals.DatabaseChanged)
	return active, nil
}

// SelectSchema switches the active schema and publishes schema-changed.
// Selecting the current schema again still publishes.
func (s *ContextService) SelectSchema(ctx context.Context, schema string) (models.ActiveContext, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return models.ActiveContext{}, ErrSchemaRequired
	}

	active, err := s.update(ctx, func(a *models.ActiveContext) {
		a.Schema = schema
	})
	if err != nil {
		return models.ActiveContext{}, err
	}

	s.publisher.Publish(signals.SchemaChanged)
	return active, nil
}

// Reload re-reads the store. Replicas call it when a remote signal says
// another process changed the selection.
func (s *ContextService) Reload(ctx context.Context) (models.ActiveContext, error) {
	saved, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrContextNotFound) {
			return s.Current(), nil
		}
		return models.ActiveContext{}, err
	}

	s.mu.Lock()
	s.active = saved
	s.mu.Unlock()
	return saved, nil
}

// update holds the lock across Save so concurrent selections are applied
// in the same order in memory and in the store. It never publishes; the
// caller does that after the lock is released.
func (s *ContextService) update(ctx context.Context, mutate func(*models.ActiveContext)) (models.ActiveContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.active
	mutate(&next)
	next.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, next); err != nil {
		return models.ActiveContext{}, fmt.Errorf("failed to save active context: %w", err)
	}
	s.active = next

	s.logger.Info("active context changed",
		zap.String("database", next.Database),
		zap.String("schema", next.Schema),
	)
	return next, nil
}
