package table

import (
	"context"

	"github.com/open-collar/reliablequeue/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedTable wraps a Table with logging and tracing.
type InstrumentedTable struct {
	next   Table
	name   string
	tracer trace.Tracer
}

// NewInstrumentedTable decorates next with OpenTelemetry spans and
// structured logs, tagged with name (the table identifier, spec.md §6.3).
func NewInstrumentedTable(next Table, name string) *InstrumentedTable {
	return &InstrumentedTable{
		next:   next,
		name:   name,
		tracer: otel.Tracer("pkg/storage/table"),
	}
}

func (t *InstrumentedTable) Insert(ctx context.Context, item Item) (*Item, error) {
	ctx, span := t.tracer.Start(ctx, "table.Insert", trace.WithAttributes(
		attribute.String("table.name", t.name),
		attribute.String("table.partition_key", item.PartitionKey),
	))
	defer span.End()

	out, err := t.next.Insert(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to insert row", "table", t.name, "partition_key", item.PartitionKey, "row_key", item.RowKey, "error", err)
		return nil, err
	}
	return out, nil
}

func (t *InstrumentedTable) Replace(ctx context.Context, item Item) (*Item, error) {
	ctx, span := t.tracer.Start(ctx, "table.Replace", trace.WithAttributes(
		attribute.String("table.name", t.name),
		attribute.String("table.partition_key", item.PartitionKey),
	))
	defer span.End()

	out, err := t.next.Replace(ctx, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().WarnContext(ctx, "failed to replace row", "table", t.name, "partition_key", item.PartitionKey, "row_key", item.RowKey, "error", err)
		return nil, err
	}
	return out, nil
}

func (t *InstrumentedTable) Get(ctx context.Context, partitionKey, rowKey string) (*Item, error) {
	ctx, span := t.tracer.Start(ctx, "table.Get", trace.WithAttributes(
		attribute.String("table.name", t.name),
		attribute.String("table.partition_key", partitionKey),
	))
	defer span.End()

	out, err := t.next.Get(ctx, partitionKey, rowKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (t *InstrumentedTable) Query(ctx context.Context, opts QueryOptions) ([]*Item, error) {
	ctx, span := t.tracer.Start(ctx, "table.Query", trace.WithAttributes(
		attribute.String("table.name", t.name),
		attribute.String("table.partition_key", opts.PartitionKey),
	))
	defer span.End()

	out, err := t.next.Query(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to query table", "table", t.name, "partition_key", opts.PartitionKey, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("table.result_count", len(out)))
	return out, nil
}

func (t *InstrumentedTable) Delete(ctx context.Context, partitionKey, rowKey string) error {
	ctx, span := t.tracer.Start(ctx, "table.Delete", trace.WithAttributes(
		attribute.String("table.name", t.name),
		attribute.String("table.partition_key", partitionKey),
	))
	defer span.End()

	err := t.next.Delete(ctx, partitionKey, rowKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().WarnContext(ctx, "failed to delete row", "table", t.name, "partition_key", partitionKey, "row_key", rowKey, "error", err)
		return err
	}
	return nil
}

func (t *InstrumentedTable) Close() error {
	logger.L().Info("closing table client", "table", t.name)
	return t.next.Close()
}
