package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"schemagraph/internal/models"
	"schemagraph/internal/signals"
)

// fakeProvider serves canned metadata. Tables listed in failing return an
// error from GetTableStructure; tables in blocking wait for ctx to end.
// A non-nil gate holds every structure request until it is closed.
type fakeProvider struct {
	tables     []models.TableSummary
	structures map[string]*models.TableStructure
	listErr    error
	failing    map[string]error
	blocking   map[string]bool
	gate       chan struct{}
	delay      time.Duration

	inFlight    int32
	maxInFlight int32
	calls       int32
}

func (p *fakeProvider) ListTables(_ context.Context, _ string) ([]models.TableSummary, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.tables, nil
}

func (p *fakeProvider) GetTableStructure(ctx context.Context, _ string, table string) (*models.TableStructure, error) {
	atomic.AddInt32(&p.calls, 1)
	n := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&p.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&p.maxInFlight, peak, n) {
			break
		}
	}

	if p.blocking[table] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if err, ok := p.failing[table]; ok {
		return nil, err
	}
	s, ok := p.structures[table]
	if !ok {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return s, nil
}

func (p *fakeProvider) ListSchemas(context.Context) ([]models.SchemaSummary, error) {
	return []models.SchemaSummary{{Name: "public", TableCount: int64(len(p.tables))}}, nil
}

func column(name, dataType string, nullable bool) models.ColumnMetadata {
	return models.ColumnMetadata{Name: name, DataType: dataType, Nullable: nullable}
}

// shopProvider is the users/orders schema: users has 5 columns with a
// primary key on id, orders has 4 columns and references users.id.
func shopProvider() *fakeProvider {
	return &fakeProvider{
		tables: []models.TableSummary{
			{Name: "users", RowCountEstimate: 120},
			{Name: "orders", RowCountEstimate: 900},
		},
		structures: map[string]*models.TableStructure{
			"users": {
				Columns: []models.ColumnMetadata{
					column("id", "integer", false),
					column("email", "character varying", false),
					column("name", "text", true),
					column("created_at", "timestamp with time zone", false),
					column("active", "boolean", false),
				},
				Constraints: []models.Constraint{
					{Name: "users_pkey", Type: models.ConstraintPrimaryKey, ColumnName: "id"},
					{Name: "users_email_key", Type: models.ConstraintUnique, ColumnName: "email"},
				},
				ForeignKeys: []models.ForeignKey{},
			},
			"orders": {
				Columns: []models.ColumnMetadata{
					column("id", "integer", false),
					column("user_id", "integer", false),
					column("total", "numeric", false),
					column("placed_at", "timestamp with time zone", true),
				},
				Constraints: []models.Constraint{
					{Name: "orders_pkey", Type: models.ConstraintPrimaryKey, ColumnName: "id"},
					{Name: "orders_user_id_fkey", Type: models.ConstraintForeignKey, ColumnName: "user_id"},
				},
				ForeignKeys: []models.ForeignKey{
					{ConstraintName: "orders_user_id_fkey", SourceColumn: "user_id", TargetTable: "users", TargetColumn: "id"},
				},
			},
		},
	}
}

// staticSource is a ContextSource whose value tests can swap.
type staticSource struct {
	mu     sync.Mutex
	active models.ActiveContext
}

func newStaticSource(database, schema string) *staticSource {
	return &staticSource{active: models.ActiveContext{Database: database, Schema: schema}}
}

func (s *staticSource) Current() models.ActiveContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *staticSource) set(schema string) {
	s.mu.Lock()
	s.active.Schema = schema
	s.mu.Unlock()
}

type aggregateFunc func(ctx context.Context, ref models.SchemaRef) (*Aggregation, error)

func (f aggregateFunc) Aggregate(ctx context.Context, ref models.SchemaRef) (*Aggregation, error) {
	return f(ctx, ref)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []signals.Topic
}

func (p *recordingPublisher) Publish(topic signals.Topic) {
	p.mu.Lock()
	p.topics = append(p.topics, topic)
	p.mu.Unlock()
}

func (p *recordingPublisher) published() []signals.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]signals.Topic(nil), p.topics...)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []models.RebuildRecord
}

func (r *memoryRecorder) Create(_ context.Context, record *models.RebuildRecord) error {
	r.mu.Lock()
	r.records = append(r.records, *record)
	r.mu.Unlock()
	return nil
}

func (r *memoryRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Outcome
	}
	return out
}
