package queue

import (
	"context"
	"time"

	"github.com/open-collar/reliablequeue/pkg/errors"
	"github.com/open-collar/reliablequeue/pkg/resilience"
)

// ResilientConfig configures the resilient queue wrapper.
type ResilientConfig struct {
	CircuitBreakerEnabled   bool          `env:"QUEUE_CB_ENABLED" env-default:"true"`
	CircuitBreakerThreshold int64         `env:"QUEUE_CB_THRESHOLD" env-default:"5"`
	CircuitBreakerTimeout   time.Duration `env:"QUEUE_CB_TIMEOUT" env-default:"30s"`

	RetryEnabled     bool          `env:"QUEUE_RETRY_ENABLED" env-default:"true"`
	RetryMaxAttempts int           `env:"QUEUE_RETRY_MAX" env-default:"3"`
	RetryBackoff     time.Duration `env:"QUEUE_RETRY_BACKOFF" env-default:"100ms"`
}

// ResilientQueue wraps a Queue with retry and circuit-breaker protection
// around Transient backend failures (spec.md §4.2).
type ResilientQueue struct {
	next     Queue
	name     string
	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
}

// NewResilientQueue wraps next with the resilience features described by cfg.
func NewResilientQueue(next Queue, name string, cfg ResilientConfig) *ResilientQueue {
	rq := &ResilientQueue{next: next, name: name}

	if cfg.CircuitBreakerEnabled {
		rq.cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "queue." + name,
			FailureThreshold: cfg.CircuitBreakerThreshold,
			SuccessThreshold: 2,
			Timeout:          cfg.CircuitBreakerTimeout,
		})
	}

	if cfg.RetryEnabled {
		rq.retryCfg = resilience.RetryConfig{
			MaxAttempts:    cfg.RetryMaxAttempts,
			InitialBackoff: cfg.RetryBackoff,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			RetryIf:        errors.IsTransient,
		}
	}

	return rq
}

func (rq *ResilientQueue) execute(ctx context.Context, fn resilience.Executor) error {
	op := fn
	if rq.cb != nil {
		cbFn := op
		op = func(ctx context.Context) error { return rq.cb.Execute(ctx, cbFn) }
	}
	if rq.retryCfg.MaxAttempts > 0 {
		return resilience.Retry(ctx, rq.retryCfg, op)
	}
	return op(ctx)
}

func (rq *ResilientQueue) Enqueue(ctx context.Context, payload []byte, opts ...EnqueueOption) error {
	return rq.execute(ctx, func(ctx context.Context) error {
		return rq.next.Enqueue(ctx, payload, opts...)
	})
}

func (rq *ResilientQueue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Delivery, error) {
	var d *Delivery
	err := rq.execute(ctx, func(ctx context.Context) error {
		var err error
		d, err = rq.next.Dequeue(ctx, visibilityTimeout)
		return err
	})
	return d, err
}

func (rq *ResilientQueue) Ack(ctx context.Context, handle string) error {
	return rq.execute(ctx, func(ctx context.Context) error { return rq.next.Ack(ctx, handle) })
}

func (rq *ResilientQueue) Extend(ctx context.Context, handle string, visibilityTimeout time.Duration) error {
	return rq.execute(ctx, func(ctx context.Context) error {
		return rq.next.Extend(ctx, handle, visibilityTimeout)
	})
}

func (rq *ResilientQueue) Release(ctx context.Context, handle string, delay time.Duration) error {
	return rq.execute(ctx, func(ctx context.Context) error { return rq.next.Release(ctx, handle, delay) })
}

func (rq *ResilientQueue) Close() error {
	return rq.next.Close()
}
