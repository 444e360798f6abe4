package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schemagraph/internal/layout"
	"schemagraph/internal/models"
	"schemagraph/internal/signals"
)

func newController(t *testing.T, agg Aggregator, source ContextSource, bus *signals.Bus, opts ControllerOptions) *GraphViewController {
	t.Helper()
	c := NewGraphViewController(agg, source, bus, opts, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func shopController(t *testing.T, p *fakeProvider, opts ControllerOptions) (*GraphViewController, *signals.Bus) {
	bus := signals.NewBus()
	agg := newAggregator(p, DefaultAggregatorOptions)
	return newController(t, agg, newStaticSource("shop", "public"), bus, opts), bus
}

func TestControllerActivateReachesReady(t *testing.T) {
	c, _ := shopController(t, shopProvider(), ControllerOptions{})
	assert.Equal(t, StateIdle, c.Snapshot().State)

	c.Activate(context.Background())
	c.Wait()

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "shop", snap.Database)
	assert.Equal(t, "public", snap.Schema)
	assert.Equal(t, layout.Grid, snap.Layout)
	assert.Empty(t, snap.Error)
	assert.Equal(t, models.GraphStats{Tables: 2, Relationships: 1}, snap.Stats)

	require.Len(t, snap.Model.Nodes, 2)
	assert.Equal(t, models.Point{X: 0, Y: 0}, snap.Model.Nodes[0].Position)
	assert.Equal(t, models.Point{X: 330, Y: 0}, snap.Model.Nodes[1].Position)
}

func TestControllerIdleWithoutSchema(t *testing.T) {
	calls := int32(0)
	agg := aggregateFunc(func(context.Context, models.SchemaRef) (*Aggregation, error) {
		atomic.AddInt32(&calls, 1)
		return &Aggregation{}, nil
	})
	c := newController(t, agg, newStaticSource("shop", ""), signals.NewBus(), ControllerOptions{})

	snap := c.Refresh(context.Background())
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Model.Nodes)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestControllerDegradedTableStillReady(t *testing.T) {
	p := shopProvider()
	p.failing = map[string]error{"orders": errors.New("i/o timeout")}
	c, _ := shopController(t, p, ControllerOptions{})

	snap := c.Refresh(context.Background())
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Error)

	orders, ok := snap.Model.Node("orders")
	require.True(t, ok)
	assert.Empty(t, orders.Payload.Columns)
	assert.Empty(t, snap.Model.Edges, "the failed table contributes no edges")

	users, ok := snap.Model.Node("users")
	require.True(t, ok)
	assert.Len(t, users.Payload.Columns, 5)

	require.Len(t, snap.Diagnostics, 1)
	assert.Equal(t, "orders", snap.Diagnostics[0].Table)
}

func TestControllerListFailureClearsGraph(t *testing.T) {
	p := shopProvider()
	c, _ := shopController(t, p, ControllerOptions{})

	require.Equal(t, StateReady, c.Refresh(context.Background()).State)

	p.listErr = errors.New(`permission denied for schema public`)
	snap := c.Refresh(context.Background())

	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "permission denied for schema public", snap.Error)
	assert.Empty(t, snap.Model.Nodes)
	assert.Empty(t, snap.Model.Edges)
}

func TestControllerLoadingKeepsPreviousModel(t *testing.T) {
	p := shopProvider()
	c, _ := shopController(t, p, ControllerOptions{})
	require.Equal(t, StateReady, c.Refresh(context.Background()).State)

	var loading []Snapshot
	var mu sync.Mutex
	stop := c.Watch(func(s Snapshot) {
		if s.State == StateLoading {
			mu.Lock()
			loading = append(loading, s)
			mu.Unlock()
		}
	})
	defer stop()

	c.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, loading, 1)
	assert.Len(t, loading[0].Model.Nodes, 2)
}

func TestControllerDiscardsStaleCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	agg := aggregateFunc(func(_ context.Context, ref models.SchemaRef) (*Aggregation, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
			return &Aggregation{Tables: []models.TableMetadata{{Name: "stale_table"}}}, nil
		}
		return &Aggregation{Tables: []models.TableMetadata{{Name: "fresh_table"}}}, nil
	})
	recorder := &memoryRecorder{}
	c := newController(t, agg, newStaticSource("shop", "public"), signals.NewBus(), ControllerOptions{Recorder: recorder})

	done := make(chan Snapshot)
	go func() { done <- c.Refresh(context.Background()) }()
	<-entered

	fresh := c.Refresh(context.Background())
	require.Equal(t, StateReady, fresh.State)
	require.Len(t, fresh.Model.Nodes, 1)
	assert.Equal(t, "fresh_table", fresh.Model.Nodes[0].ID)

	close(release)
	slow := <-done
	assert.Equal(t, fresh.Generation, slow.Generation)

	final := c.Snapshot()
	require.Len(t, final.Model.Nodes, 1)
	assert.Equal(t, "fresh_table", final.Model.Nodes[0].ID)
	assert.Equal(t, uint64(2), final.Generation)
	assert.Equal(t, []string{"ready", "stale"}, recorder.outcomes())
}

func TestControllerRefreshOutlivesCallerContext(t *testing.T) {
	p := shopProvider()
	c, _ := shopController(t, p, ControllerOptions{})
	require.Equal(t, StateReady, c.Refresh(context.Background()).State)

	gate := make(chan struct{})
	p.gate = gate

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan Snapshot, 1)
	go func() { done <- c.Refresh(ctx) }()

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	var snap Snapshot
	select {
	case snap = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Refresh did not return")
	}

	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Diagnostics)
	users, ok := snap.Model.Node("users")
	require.True(t, ok)
	assert.Len(t, users.Payload.Columns, 5)
	orders, ok := snap.Model.Node("orders")
	require.True(t, ok)
	assert.Len(t, orders.Payload.Columns, 4)
}

func TestControllerCloseCancelsRefresh(t *testing.T) {
	p := shopProvider()
	p.gate = make(chan struct{})
	recorder := &memoryRecorder{}
	c, _ := shopController(t, p, ControllerOptions{Recorder: recorder})

	done := make(chan Snapshot, 1)
	go func() { done <- c.Refresh(context.Background()) }()

	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateLoading
	}, 5*time.Second, 5*time.Millisecond)
	c.Close()

	select {
	case snap := <-done:
		assert.NotEqual(t, StateReady, snap.State)
	case <-time.After(5 * time.Second):
		t.Fatal("Refresh did not return after Close")
	}
	assert.Equal(t, []string{"stale"}, recorder.outcomes())
	assert.Equal(t, StateLoading, c.Refresh(context.Background()).State, "closed controller does not rebuild")
}

func TestControllerSetLayoutReprojects(t *testing.T) {
	c, _ := shopController(t, shopProvider(), ControllerOptions{})
	before := c.Refresh(context.Background())

	after, err := c.SetLayout(layout.Circular)
	require.NoError(t, err)

	assert.Equal(t, StateReady, after.State)
	assert.Equal(t, layout.Circular, after.Layout)
	assert.Equal(t, before.Generation, after.Generation, "no new cycle")
	assert.Equal(t, before.Model.Edges, after.Model.Edges)
	require.Len(t, after.Model.Nodes, 2)
	for i := range after.Model.Nodes {
		assert.Equal(t, before.Model.Nodes[i].ID, after.Model.Nodes[i].ID)
		assert.Equal(t, before.Model.Nodes[i].Payload, after.Model.Nodes[i].Payload)
	}
	assert.Equal(t, models.Point{X: 600, Y: 300}, after.Model.Nodes[0].Position)
	assert.NotEqual(t, before.Model.Nodes[1].Position, after.Model.Nodes[1].Position)
	assert.Equal(t, models.Point{X: 330, Y: 0}, before.Model.Nodes[1].Position, "old snapshot untouched")
}

func TestControllerSetLayoutBeforeReady(t *testing.T) {
	c, _ := shopController(t, shopProvider(), ControllerOptions{})

	snap, err := c.SetLayout(layout.Hierarchical)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, layout.Hierarchical, snap.Layout)

	ready := c.Refresh(context.Background())
	assert.Equal(t, layout.Hierarchical, ready.Layout)
	assert.Equal(t, models.Point{X: 330, Y: 0}, ready.Model.Nodes[1].Position)

	_, err = c.SetLayout(layout.Kind(7))
	assert.Error(t, err)
}

func TestControllerRebuildsOnSignals(t *testing.T) {
	p := shopProvider()
	source := newStaticSource("shop", "public")
	bus := signals.NewBus()
	var schemas []string
	var mu sync.Mutex
	agg := aggregateFunc(func(ctx context.Context, ref models.SchemaRef) (*Aggregation, error) {
		mu.Lock()
		schemas = append(schemas, ref.Schema)
		mu.Unlock()
		return newAggregator(p, DefaultAggregatorOptions).Aggregate(ctx, ref)
	})
	c := newController(t, agg, source, bus, ControllerOptions{})

	c.Activate(context.Background())
	c.Wait()

	source.set("billing")
	bus.Publish(signals.SchemaChanged)
	c.Wait()
	bus.Publish(signals.DatabaseChanged)
	c.Wait()
	bus.Publish(signals.ConnectionChanged)
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"public", "billing", "billing"}, schemas)
	assert.Equal(t, "billing", c.Snapshot().Schema)
}

func TestControllerCloseReleasesSubscriptions(t *testing.T) {
	var calls int32
	agg := aggregateFunc(func(context.Context, models.SchemaRef) (*Aggregation, error) {
		atomic.AddInt32(&calls, 1)
		return &Aggregation{}, nil
	})
	bus := signals.NewBus()
	c := NewGraphViewController(agg, newStaticSource("shop", "public"), bus, ControllerOptions{}, zap.NewNop())

	c.Activate(context.Background())
	c.Wait()
	assert.Equal(t, 1, bus.SubscriberCount(signals.SchemaChanged))
	assert.Equal(t, 1, bus.SubscriberCount(signals.DatabaseChanged))

	c.Close()
	c.Close()
	assert.Zero(t, bus.SubscriberCount(signals.SchemaChanged))
	assert.Zero(t, bus.SubscriberCount(signals.DatabaseChanged))

	bus.Publish(signals.SchemaChanged)
	c.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestControllerCloseWaitsForCycles(t *testing.T) {
	agg := aggregateFunc(func(ctx context.Context, _ models.SchemaRef) (*Aggregation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewGraphViewController(agg, newStaticSource("shop", "public"), signals.NewBus(), ControllerOptions{}, zap.NewNop())
	c.Activate(context.Background())

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.NotEqual(t, StateError, c.Snapshot().State, "cancelled cycles are discarded")
}

func TestControllerWatch(t *testing.T) {
	c, _ := shopController(t, shopProvider(), ControllerOptions{})

	var states []ViewState
	var mu sync.Mutex
	stop := c.Watch(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	c.Refresh(context.Background())
	stop()
	stop()
	c.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ViewState{StateLoading, StateReady}, states)
}

func TestControllerRecordsOutcomes(t *testing.T) {
	p := shopProvider()
	recorder := &memoryRecorder{}
	c, _ := shopController(t, p, ControllerOptions{Recorder: recorder})

	c.Refresh(context.Background())
	p.listErr = errors.New("boom")
	c.Refresh(context.Background())

	require.Len(t, recorder.records, 2)
	ready, failed := recorder.records[0], recorder.records[1]
	assert.Equal(t, "ready", ready.Outcome)
	assert.Equal(t, 2, ready.TableCount)
	assert.Equal(t, 1, ready.EdgeCount)
	assert.Equal(t, uint64(1), ready.Generation)
	assert.Equal(t, "error", failed.Outcome)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "boom", *failed.ErrorMessage)
}

func TestViewStateText(t *testing.T) {
	text, err := StateReady.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ready", string(text))
	assert.Equal(t, "ViewState(9)", ViewState(9).String())
}
