package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schemagraph/internal/models"
)

// ErrContextNotFound is returned by Load when nothing has been saved yet.
var ErrContextNotFound = errors.New("active context not found")

const defaultContextID = "default"

// ContextRepository persists the active database/schema selection in the
// control-plane database so it survives restarts and is shared between
// replicas.
type ContextRepository struct {
	db *gorm.DB
}

func NewContextRepository(db *gorm.DB) *ContextRepository {
	return &ContextRepository{db: db}
}

func (r *ContextRepository) Load(ctx context.Context) (models.ActiveContext, error) {
	var active models.ActiveContext
	err := r.db.WithContext(ctx).Where("id = ?", defaultContextID).First(&active).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ActiveContext{}, ErrContextNotFound
	}
	return active, err
}

func (r *ContextRepository) Save(ctx context.Context, active models.ActiveContext) error {
	active.ID = defaultContextID
	if active.UpdatedAt.IsZero() {
		active.UpdatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"database_name", "schema_name", "updated_at"}),
	}).Create(&active).Error
}

// MemoryContextRepository is used when no control-plane database is configured.
type MemoryContextRepository struct {
	mu     sync.RWMutex
	active *models.ActiveContext
}

func NewMemoryContextRepository() *MemoryContextRepository {
	return &MemoryContextRepository{}
}

func (r *MemoryContextRepository) Load(_ context.Context) (models.ActiveContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return models.ActiveContext{}, ErrContextNotFound
	}
	return *r.active, nil
}

func (r *MemoryContextRepository) Save(_ context.Context, active models.ActiveContext) error {
	if active.UpdatedAt.IsZero() {
		active.UpdatedAt = time.Now()
	}
	r.mu.Lock()
	r.active = &active
	r.mu.Unlock()
	return nil
}
