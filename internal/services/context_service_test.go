package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schemagraph/internal/models"
	"schemagraph/internal/repositories"
	"schemagraph/internal/signals"
)

type failingStore struct {
	loadErr error
	saveErr error
}

func (s failingStore) Load(context.Context) (models.ActiveContext, error) {
	return models.ActiveContext{}, s.loadErr
}

func (s failingStore) Save(context.Context, models.ActiveContext) error {
	return s.saveErr
}

func newContextService(t *testing.T, store ContextStore, pub signals.Publisher) *ContextService {
	t.Helper()
	svc, err := NewContextService(context.Background(), store, pub,
		models.ActiveContext{Database: "shop", Schema: "public"}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestContextServiceInitial(t *testing.T) {
	store := repositories.NewMemoryContextRepository()
	svc := newContextService(t, store, &recordingPublisher{})

	assert.Equal(t, models.SchemaRef{Database: "shop", Schema: "public"}, svc.Current().Ref())

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "public", saved.Schema, "initial selection is persisted")
}

func TestContextServiceRestoresSavedSelection(t *testing.T) {
	store := repositories.NewMemoryContextRepository()
	require.NoError(t, store.Save(context.Background(), models.ActiveContext{Database: "crm", Schema: "sales"}))

	svc := newContextService(t, store, &recordingPublisher{})
	assert.Equal(t, "crm", svc.Current().Database)
	assert.Equal(t, "sales", svc.Current().Schema)
}

func TestContextServiceSelectSchema(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newContextService(t, repositories.NewMemoryContextRepository(), pub)

	active, err := svc.SelectSchema(context.Background(), " billing ")
	require.NoError(t, err)
	assert.Equal(t, "billing", active.Schema)
	assert.Equal(t, "billing", svc.Current().Schema)

	_, err = svc.SelectSchema(context.Background(), "billing")
	require.NoError(t, err)
	assert.Equal(t, []signals.Topic{signals.SchemaChanged, signals.SchemaChanged}, pub.published())

	_, err = svc.SelectSchema(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrSchemaRequired)
	assert.Len(t, pub.published(), 2)
}

func TestContextServiceSelectDatabase(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newContextService(t, repositories.NewMemoryContextRepository(), pub)

	active, err := svc.SelectDatabase(context.Background(), "crm", "")
	require.NoError(t, err)
	assert.Equal(t, "crm", active.Database)
	assert.Equal(t, "public", active.Schema, "schema kept when not given")

	active, err = svc.SelectDatabase(context.Background(), "analytics", "events")
	require.NoError(t, err)
	assert.Equal(t, models.SchemaRef{Database: "analytics", Schema: "events"}, active.Ref())

	_, err = svc.SelectDatabase(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrDatabaseRequired)

	assert.Equal(t, []signals.Topic{signals.DatabaseChanged, signals.DatabaseChanged}, pub.published())
}

func TestContextServiceSchemaPerDatabase(t *testing.T) {
	store := repositories.NewMemoryContextRepository()
	svc, err := NewContextService(context.Background(), store, &recordingPublisher{},
		models.ActiveContext{Database: "shop", Schema: "shop"}, zap.NewNop(), WithSchemaPerDatabase())
	require.NoError(t, err)

	active, err := svc.SelectDatabase(context.Background(), "crm", "")
	require.NoError(t, err)
	assert.Equal(t, models.SchemaRef{Database: "crm", Schema: "crm"}, active.Ref())

	active, err = svc.SelectDatabase(context.Background(), "analytics", "events")
	require.NoError(t, err)
	assert.Equal(t, "events", active.Schema, "an explicit schema still wins")

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "events", saved.Schema)
}

func TestContextServiceSaveFailure(t *testing.T) {
	pub := &recordingPublisher{}
	svc, err := NewContextService(context.Background(),
		failingStore{loadErr: repositories.ErrContextNotFound, saveErr: errors.New("read-only transaction")},
		pub, models.ActiveContext{Database: "shop", Schema: "public"}, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, svc)

	_, err = NewContextService(context.Background(),
		failingStore{loadErr: errors.New("connection refused")},
		pub, models.ActiveContext{}, zap.NewNop())
	assert.ErrorContains(t, err, "connection refused")
}

func TestContextServiceSelectDoesNotPublishOnSaveError(t *testing.T) {
	store := &toggleStore{MemoryContextRepository: repositories.NewMemoryContextRepository()}
	pub := &recordingPublisher{}
	svc := newContextService(t, store, pub)

	store.fail = true
	_, err := svc.SelectSchema(context.Background(), "billing")
	assert.Error(t, err)
	assert.Equal(t, "public", svc.Current().Schema)
	assert.Empty(t, pub.published())
}

func TestContextServiceReload(t *testing.T) {
	store := repositories.NewMemoryContextRepository()
	svc := newContextService(t, store, &recordingPublisher{})

	// another replica changed the selection
	require.NoError(t, store.Save(context.Background(), models.ActiveContext{Database: "shop", Schema: "audit"}))

	active, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "audit", active.Schema)
	assert.Equal(t, "audit", svc.Current().Schema)
}

type toggleStore struct {
	*repositories.MemoryContextRepository
	fail bool
}

func (s *toggleStore) Save(ctx context.Context, active models.ActiveContext) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryContextRepository.Save(ctx, active)
}
