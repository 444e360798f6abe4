package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"schemagraph/internal/models"
)

// MetadataProvider is the read-only metadata service of one database.
type MetadataProvider interface {
	ListTables(ctx context.Context, schema string) ([]models.TableSummary, error)
	GetTableStructure(ctx context.Context, schema, table string) (*models.TableStructure, error)
}

// SchemaLister is implemented by providers that can enumerate schemas.
type SchemaLister interface {
	ListSchemas(ctx context.Context) ([]models.SchemaSummary, error)
}

// ResolverFunc returns the provider serving database.
type ResolverFunc func(ctx context.Context, database string) (MetadataProvider, error)

// StaticResolver always resolves to p, whatever the database.
func StaticResolver(p MetadataProvider) ResolverFunc {
	return func(context.Context, string) (MetadataProvider, error) {
		return p, nil
	}
}

type AggregationErrorKind int

const (
	ListFailed AggregationErrorKind = iota + 1
)

func (k AggregationErrorKind) String() string {
	switch k {
	case ListFailed:
		return "list_failed"
	default:
		return "unknown"
	}
}

// AggregationError is fatal to a cycle. Its message is the cause's message.
type AggregationError struct {
	Kind  AggregationErrorKind
	Cause error
}

func (e *AggregationError) Error() string {
	return e.Cause.Error()
}

func (e *AggregationError) Unwrap() error {
	return e.Cause
}

// TableDiagnostic records a table whose structure could not be fetched.
type TableDiagnostic struct {
	Table   string `json:"table"`
	Message string `json:"message"`
}

type Aggregation struct {
	Tables      []models.TableMetadata
	Diagnostics []TableDiagnostic
}

// Degraded reports whether at least one table came back without structure.
func (a *Aggregation) Degraded() bool {
	return len(a.Diagnostics) > 0
}

type AggregatorOptions struct {
	// Concurrency caps the number of in-flight structure requests.
	Concurrency int
	// RequestTimeout bounds each structure request. Zero disables it.
	RequestTimeout time.Duration
}

var DefaultAggregatorOptions = AggregatorOptions{
	Concurrency:    8,
	RequestTimeout: 10 * time.Second,
}

type MetadataAggregator struct {
	resolve ResolverFunc
	opts    AggregatorOptions
	logger  *zap.Logger
}

func NewMetadataAggregator(resolve ResolverFunc, opts AggregatorOptions, logger *zap.Logger) *MetadataAggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultAggregatorOptions.Concurrency
	}
	return &MetadataAggregator{resolve: resolve, opts: opts, logger: logger}
}

// Aggregate lists the tables of ref and fetches each table's structure.
// Only the list step can fail the call; a failed structure request leaves
// that table empty and adds a diagnostic. The result keeps list order.
func (a *MetadataAggregator) Aggregate(ctx context.Context, ref models.SchemaRef) (*Aggregation, error) {
	provider, err := a.resolve(ctx, ref.Database)
	if err != nil {
		return nil, &AggregationError{Kind: ListFailed, Cause: err}
	}

	summaries, err := provider.ListTables(ctx, ref.Schema)
	if err != nil {
		return nil, &AggregationError{Kind: ListFailed, Cause: err}
	}

	tables := make([]models.TableMetadata, len(summaries))
	failures := make([]error, len(summaries))

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, summary := range summaries {
		g.Go(func() error {
			tables[i], failures[i] = a.fetchTable(ctx, provider, ref.Schema, summary)
			// never fail the group: one table must not cancel the others
			return nil
		})
	}
	_ = g.Wait()

	result := &Aggregation{Tables: tables, Diagnostics: make([]TableDiagnostic, 0)}
	for i, ferr := range failures {
		if ferr == nil {
			continue
		}
		result.Diagnostics = append(result.Diagnostics, TableDiagnostic{
			Table:   summaries[i].Name,
			Message: ferr.Error(),
		})
		a.logger.Warn("table structure unavailable",
			zap.String("schema", ref.String()),
			zap.String("table", summaries[i].Name),
			zap.Error(ferr),
		)
	}
	return result, nil
}

func (a *MetadataAggregator) fetchTable(ctx context.Context, provider MetadataProvider, schema string, summary models.TableSummary) (models.TableMetadata, error) {
	meta := models.TableMetadata{
		Name:             summary.Name,
		RowCountEstimate: summary.RowCountEstimate,
		Columns:          make([]models.ColumnMetadata, 0),
		Constraints:      make([]models.Constraint, 0),
		ForeignKeys:      make([]models.ForeignKey, 0),
	}

	reqCtx := ctx
	if a.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()
	}

	structure, err := provider.GetTableStructure(reqCtx, schema, summary.Name)
	if err == nil && structure == nil {
		err = errors.New("provider returned no structure")
	}
	if err != nil {
		// only the per-request deadline counts as a timeout, not the caller's
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("structure request timed out after %s: %w", a.opts.RequestTimeout, err)
		}
		return meta, err
	}

	if structure.Columns != nil {
		meta.Columns = structure.Columns
	}
	if structure.Constraints != nil {
		meta.Constraints = structure.Constraints
	}
	if structure.ForeignKeys != nil {
		meta.ForeignKeys = structure.ForeignKeys
	}
	return meta, nil
}
