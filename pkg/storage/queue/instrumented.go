package queue

import (
	"context"
	"time"

	"github.com/open-collar/reliablequeue/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedQueue wraps a Queue with logging and tracing.
type InstrumentedQueue struct {
	next   Queue
	name   string
	tracer trace.Tracer
}

// NewInstrumentedQueue decorates next with OpenTelemetry spans and
// structured logs, tagged with name (typically the queue's identifier
// form, spec.md §6.2).
func NewInstrumentedQueue(next Queue, name string) *InstrumentedQueue {
	return &InstrumentedQueue{
		next:   next,
		name:   name,
		tracer: otel.Tracer("pkg/storage/queue"),
	}
}

func (q *InstrumentedQueue) Enqueue(ctx context.Context, payload []byte, opts ...EnqueueOption) error {
	ctx, span := q.tracer.Start(ctx, "queue.Enqueue", trace.WithAttributes(
		attribute.String("queue.name", q.name),
		attribute.Int("queue.payload_bytes", len(payload)),
	))
	defer span.End()

	err := q.next.Enqueue(ctx, payload, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to enqueue notification", "queue", q.name, "error", err)
		return err
	}
	return nil
}

func (q *InstrumentedQueue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Delivery, error) {
	ctx, span := q.tracer.Start(ctx, "queue.Dequeue", trace.WithAttributes(
		attribute.String("queue.name", q.name),
	))
	defer span.End()

	d, err := q.next.Dequeue(ctx, visibilityTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, "failed to dequeue notification", "queue", q.name, "error", err)
		return nil, err
	}
	if d != nil {
		span.SetAttributes(attribute.Int("queue.delivery_count", int(d.DeliveryCount)))
	}
	return d, nil
}

func (q *InstrumentedQueue) Ack(ctx context.Context, handle string) error {
	ctx, span := q.tracer.Start(ctx, "queue.Ack", trace.WithAttributes(attribute.String("queue.name", q.name)))
	defer span.End()

	err := q.next.Ack(ctx, handle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().WarnContext(ctx, "failed to ack notification", "queue", q.name, "error", err)
		return err
	}
	return nil
}

func (q *InstrumentedQueue) Extend(ctx context.Context, handle string, visibilityTimeout time.Duration) error {
	ctx, span := q.tracer.Start(ctx, "queue.Extend", trace.WithAttributes(attribute.String("queue.name", q.name)))
	defer span.End()

	err := q.next.Extend(ctx, handle, visibilityTimeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().WarnContext(ctx, "failed to extend lease", "queue", q.name, "error", err)
		return err
	}
	return nil
}

func (q *InstrumentedQueue) Release(ctx context.Context, handle string, delay time.Duration) error {
	ctx, span := q.tracer.Start(ctx, "queue.Release", trace.WithAttributes(attribute.String("queue.name", q.name)))
	defer span.End()

	err := q.next.Release(ctx, handle, delay)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().WarnContext(ctx, "failed to release notification", "queue", q.name, "error", err)
		return err
	}
	return nil
}

func (q *InstrumentedQueue) Close() error {
	logger.L().Info("closing queue client", "queue", q.name)
	return q.next.Close()
}
