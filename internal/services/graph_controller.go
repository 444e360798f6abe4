package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schemagraph/internal/layout"
	"schemagraph/internal/models"
	"schemagraph/internal/signals"
)

type ViewState int

const (
	StateIdle ViewState = iota
	StateLoading
	StateReady
	StateError
)

var viewStateNames = [...]string{
	StateIdle:    "idle",
	StateLoading: "loading",
	StateReady:   "ready",
	StateError:   "error",
}

func (s ViewState) String() string {
	if s < 0 || int(s) >= len(viewStateNames) {
		return fmt.Sprintf("ViewState(%d)", int(s))
	}
	return viewStateNames[s]
}

func (s ViewState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable view of the controller. Model is shared with the
// controller and must not be modified.
type Snapshot struct {
	State       ViewState          `json:"state"`
	Database    string             `json:"database"`
	Schema      string             `json:"schema"`
	Layout      layout.Kind        `json:"layout"`
	Generation  uint64             `json:"generation"`
	Model       *models.GraphModel `json:"model"`
	Stats       models.GraphStats  `json:"stats"`
	Diagnostics []TableDiagnostic  `json:"diagnostics,omitempty"`
	Error       string             `json:"error,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type Aggregator interface {
	Aggregate(ctx context.Context, ref models.SchemaRef) (*Aggregation, error)
}

// ContextSource provides the active selection a cycle targets.
type ContextSource interface {
	Current() models.ActiveContext
}

// contextReloader is implemented by sources whose selection may have been
// changed by another process.
type contextReloader interface {
	Reload(ctx context.Context) (models.ActiveContext, error)
}

type SignalSubscriber interface {
	Subscribe(topic signals.Topic, handler signals.Handler) *signals.Subscription
}

type RebuildRecorder interface {
	Create(ctx context.Context, record *models.RebuildRecord) error
}

type noopRecorder struct{}

func (noopRecorder) Create(context.Context, *models.RebuildRecord) error { return nil }

const (
	outcomeReady = "ready"
	outcomeError = "error"
	outcomeStale = "stale"

	recordTimeout = 5 * time.Second
)

type ControllerOptions struct {
	Layout     layout.Kind
	Dimensions layout.Dimensions
	// Recorder receives one record per finished cycle. Nil disables it.
	Recorder RebuildRecorder
}

// GraphViewController owns the graph of the active schema. Every trigger
// runs a full rebuild; overlapping cycles are allowed and only the most
// recently started one commits.
type GraphViewController struct {
	aggregator Aggregator
	source     ContextSource
	subscriber SignalSubscriber
	recorder   RebuildRecorder
	dims       layout.Dimensions
	logger     *zap.Logger

	mu          sync.Mutex
	state       ViewState
	ref         models.SchemaRef
	kind        layout.Kind
	model       *models.GraphModel
	diagnostics []TableDiagnostic
	errMsg      string
	generation  uint64
	updatedAt   time.Time

	subs   []*signals.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	// lifetime is cancelled only by Close.
	lifetime     context.Context
	stopLifetime context.CancelFunc

	// notifyMu keeps watcher callbacks in commit order.
	notifyMu    sync.Mutex
	watchers    map[uint64]func(Snapshot)
	nextWatchID uint64
}

func NewGraphViewController(aggregator Aggregator, source ContextSource, subscriber SignalSubscriber, opts ControllerOptions, logger *zap.Logger) *GraphViewController {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	dims := opts.Dimensions
	if dims == (layout.Dimensions{}) {
		dims = layout.DefaultDimensions
	}
	kind := opts.Layout
	if !kind.Valid() {
		kind = layout.Grid
	}
	lifetime, stopLifetime := context.WithCancel(context.Background())
	return &GraphViewController{
		aggregator: aggregator,
		source:     source,
		subscriber: subscriber,
		recorder:   recorder,
		dims:       dims,
		logger:     logger,
		state:      StateIdle,
		kind:       kind,
		model:      models.NewGraphModel(),
		watchers:   make(map[uint64]func(Snapshot)),

		lifetime:     lifetime,
		stopLifetime: stopLifetime,
	}
}

// Activate subscribes to schema-changed and database-changed and starts the
// first rebuild. Cycles started by signals run on ctx until Close.
func (c *GraphViewController) Activate(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.ctx != nil {
		c.mu.Unlock()
		return
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	subs := []*signals.Subscription{
		c.subscriber.Subscribe(signals.SchemaChanged, c.onSignal),
		c.subscriber.Subscribe(signals.DatabaseChanged, c.onSignal),
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		for _, sub := range subs {
			sub.Release()
		}
		return
	}
	c.subs = subs
	c.mu.Unlock()

	c.trigger("activate")
}

func (c *GraphViewController) onSignal(topic signals.Topic) {
	c.trigger(topic.String())
}

// trigger starts an asynchronous cycle unless the controller is closed.
func (c *GraphViewController) trigger(reason string) {
	c.mu.Lock()
	if c.closed || c.ctx == nil {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.rebuild(ctx, reason)
	}()
}

// Refresh runs one cycle and returns the snapshot after it. When a newer
// cycle started meanwhile, the returned snapshot reflects that instead.
// The cycle keeps the values of ctx but not its cancellation: once started
// it runs to completion unless the controller is closed.
func (c *GraphViewController) Refresh(ctx context.Context) Snapshot {
	c.mu.Lock()
	if c.closed {
		defer c.mu.Unlock()
		return c.snapshotLocked()
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(c.lifetime, cancel)
	defer stop()

	return c.rebuild(cycleCtx, "refresh")
}

// SetLayout changes the layout kind. A Ready model is re-projected at once;
// otherwise the kind is applied when the next cycle commits.
func (c *GraphViewController) SetLayout(kind layout.Kind) (Snapshot, error) {
	if !kind.Valid() {
		return Snapshot{}, fmt.Errorf("invalid layout kind %d", int(kind))
	}

	c.mu.Lock()
	c.kind = kind
	if c.state == StateReady {
		c.model = c.dims.Apply(c.model, kind)
		c.updatedAt = time.Now()
	}
	return c.commitLocked(), nil
}

func (c *GraphViewController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch registers fn to receive every state change. The returned func
// deregisters it. fn runs on the goroutine that changed the state and must
// not call SetLayout or Refresh.
func (c *GraphViewController) Watch(fn func(Snapshot)) func() {
	c.notifyMu.Lock()
	id := c.nextWatchID
	c.nextWatchID++
	c.watchers[id] = fn
	c.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.notifyMu.Lock()
			delete(c.watchers, id)
			c.notifyMu.Unlock()
		})
	}
}

// Wait blocks until every cycle started so far is done.
func (c *GraphViewController) Wait() {
	c.wg.Wait()
}

// Close releases the signal subscriptions, cancels in-flight cycles and
// waits for them. Results of cancelled cycles are discarded.
func (c *GraphViewController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	cancel := c.cancel
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Release()
	}
	if cancel != nil {
		cancel()
	}
	c.stopLifetime()
	c.wg.Wait()
}

func (c *GraphViewController) rebuild(ctx context.Context, reason string) Snapshot {
	active := c.currentContext(ctx)
	ref := active.Ref()
	cycleID := uuid.NewString()
	log := c.logger.With(
		zap.String("cycle_id", cycleID),
		zap.String("schema", ref.String()),
		zap.String("reason", reason),
	)

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.ref = ref

	if ref.Schema == "" {
		c.state = StateIdle
		c.model = models.NewGraphModel()
		c.diagnostics = nil
		c.errMsg = ""
		c.updatedAt = time.Now()
		log.Debug("no schema selected")
		return c.commitLocked()
	}

	// the previous model stays visible while loading
	c.state = StateLoading
	c.commitLocked()

	started := time.Now()
	log.Debug("rebuild started", zap.Uint64("generation", gen))
	agg, err := c.aggregator.Aggregate(ctx, ref)
	elapsed := time.Since(started)

	record := &models.RebuildRecord{
		Generation:   gen,
		DatabaseName: ref.Database,
		SchemaName:   ref.Schema,
		DurationMs:   elapsed.Milliseconds(),
		StartedAt:    started,
	}

	c.mu.Lock()
	if gen != c.generation || c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		log.Debug("discarding stale rebuild",
			zap.Uint64("generation", gen),
			zap.Uint64("latest", snap.Generation),
		)
		record.Outcome = outcomeStale
		c.record(ctx, record, log)
		return snap
	}

	if err != nil {
		c.state = StateError
		c.model = models.NewGraphModel()
		c.diagnostics = nil
		c.errMsg = err.Error()
		log.Error("rebuild failed", zap.Error(err), zap.Duration("elapsed", elapsed))

		msg := c.errMsg
		record.Outcome = outcomeError
		record.ErrorMessage = &msg
	} else {
		c.state = StateReady
		c.model = c.dims.Apply(Assemble(agg.Tables), c.kind)
		c.diagnostics = agg.Diagnostics
		c.errMsg = ""

		stats := c.model.Stats()
		log.Info("rebuild completed",
			zap.Int("tables", stats.Tables),
			zap.Int("relationships", stats.Relationships),
			zap.Int("unresolved", stats.Unresolved),
			zap.Int("degraded", len(agg.Diagnostics)),
			zap.Duration("elapsed", elapsed),
		)

		record.Outcome = outcomeReady
		record.TableCount = stats.Tables
		record.EdgeCount = stats.Relationships
		record.DegradedTables = len(agg.Diagnostics)
	}
	c.updatedAt = time.Now()
	snap := c.commitLocked()

	c.record(ctx, record, log)
	return snap
}

// commitLocked must be called with mu held; it releases mu and notifies the
// watchers with the resulting snapshot.
func (c *GraphViewController) commitLocked() Snapshot {
	snap := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	for _, fn := range c.watchers {
		fn(snap)
	}
	return snap
}

func (c *GraphViewController) snapshotLocked() Snapshot {
	return Snapshot{
		State:       c.state,
		Database:    c.ref.Database,
		Schema:      c.ref.Schema,
		Layout:      c.kind,
		Generation:  c.generation,
		Model:       c.model,
		Stats:       c.model.Stats(),
		Diagnostics: c.diagnostics,
		Error:       c.errMsg,
		UpdatedAt:   c.updatedAt,
	}
}

func (c *GraphViewController) currentContext(ctx context.Context) models.ActiveContext {
	if r, ok := c.source.(contextReloader); ok {
		active, err := r.Reload(ctx)
		if err == nil {
			return active
		}
		c.logger.Warn("failed to reload active context", zap.Error(err))
	}
	return c.source.Current()
}

func (c *GraphViewController) record(ctx context.Context, record *models.RebuildRecord, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := c.recorder.Create(ctx, record); err != nil {
		log.Warn("failed to record rebuild", zap.Error(err))
	}
}
