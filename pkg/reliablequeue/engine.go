package reliablequeue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-collar/reliablequeue/pkg/events"
	"github.com/open-collar/reliablequeue/pkg/logger"
	"github.com/open-collar/reliablequeue/pkg/secrets"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	blobazure "github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/azureblob"
	bloblocal "github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/local"
	blobmemory "github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	"github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/azservicebus"
	queuememory "github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
	"github.com/open-collar/reliablequeue/pkg/storage/table/adapters/azcosmos"
	tablememory "github.com/open-collar/reliablequeue/pkg/storage/table/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/telemetry"
)

// secretConnectionStringPrefix marks a QueueConfig.StorageConnectionString
// value as a reference into a secrets.Client rather than a literal
// credential, so operators can keep credentials out of the config file
// itself (expansion of spec.md §6.1).
const secretConnectionStringPrefix = "secret://"

// memoryConnectionString explicitly requests the in-memory backend for a
// queue's notification/state/topic resources regardless of Mode — the
// escape hatch tests and local runs use instead of leaving
// StorageConnectionString empty, which buildQueue reserves
// for receive-only queues (spec.md §6.1).
const memoryConnectionString = "memory"

// Queue is the per-queue façade bundling every component the engine needs
// to serve one configured queue: Sender on the send side, Receiver (plus
// its OrderingEngine) on the receive side, PoisonHandler for operator
// inspection, and Janitor for background sweeps (spec.md §6.4, §2).
type Queue struct {
	Key    QueueKey
	Config QueueConfig

	Sender   *Sender
	Receiver *Receiver
	Poison   *PoisonHandler
	Janitor  *Janitor

	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    queue.Queue

	subscription *Subscription
}

// Send implements spec.md §6.4's send(queueKey, body, ...). Present on
// Queue for symmetry with the package-level Service.Send convenience.
func (q *Queue) Send(ctx context.Context, body []byte, opts SendOptions) (string, error) {
	return q.Sender.Send(ctx, body, opts)
}

// Subscribe starts the queue's pull-loop Receiver (only meaningful when
// Config.CreateListener is true); repeated calls replace any existing
// subscription.
func (q *Queue) Subscribe(ctx context.Context, handler Handler) (*Subscription, error) {
	sub, err := q.Receiver.Subscribe(ctx, handler)
	if err != nil {
		return nil, err
	}
	if q.subscription != nil {
		q.subscription.Cancel()
		q.subscription.Wait()
	}
	q.subscription = sub
	return sub, nil
}

// OnReceived implements spec.md §6.4's external push path.
func (q *Queue) OnReceived(ctx context.Context, d *queue.Delivery, handler Handler) error {
	return q.Receiver.OnReceived(ctx, d, handler)
}

// Close stops any running subscription and releases backend resources.
func (q *Queue) Close() error {
	if q.subscription != nil {
		q.subscription.Cancel()
		q.subscription.Wait()
	}
	var firstErr error
	for _, c := range []func() error{q.notifyQ.Close, q.stateTable.Close, q.topicTable.Close} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Service is the engine's top-level process state (spec.md §9 "Global
// process state"): one Queue façade per configured name, keyed by display
// string, constructed once at startup and torn down together.
type Service struct {
	EndpointID string
	queues     map[string]*Queue

	telemetryShutdown func(context.Context) error
}

// ServiceOption configures NewService beyond its required arguments.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	secretsClient secrets.Client
	telemetryCfg  *telemetry.Config
	eventBus      events.Bus
}

// WithEventBus attaches a domain-event publisher: the Receiver publishes
// "message.delivered"/"message.poisoned" and the Janitor publishes
// "message.expired"/"message.lease_reclaimed" to it as they occur. Useful
// for wiring metrics or audit logging without coupling those concerns into
// the engine itself. Unset by default, in which case no events are
// published.
func WithEventBus(bus events.Bus) ServiceOption {
	return func(o *serviceOptions) { o.eventBus = bus }
}

// WithSecretsClient resolves any QueueConfig.StorageConnectionString
// prefixed "secret://" through client rather than treating it as a literal
// credential (expansion of spec.md §6.1; grounded on pkg/secrets).
func WithSecretsClient(client secrets.Client) ServiceOption {
	return func(o *serviceOptions) { o.secretsClient = client }
}

// WithTelemetry initializes OpenTelemetry tracing for the process before
// any queue is constructed, so the Instrumented* decorators' spans export
// from the moment the first adapter call is made. The returned Service's
// Close shuts it down.
func WithTelemetry(cfg telemetry.Config) ServiceOption {
	return func(o *serviceOptions) { o.telemetryCfg = &cfg }
}

// NewService builds a Queue façade for every entry in cfg.Queues whose
// IsEnabled is true, wiring each to its backend resources per
// StorageConnectionString (spec.md §6.1, §6.2). endpointID identifies this
// process for leasing and topic-affinity purposes; a random one is
// generated if empty.
func NewService(cfg ReliableQueueConfig, endpointID string, opts ...ServiceOption) (*Service, error) {
	if endpointID == "" {
		endpointID = uuid.NewString()
	}

	var resolved serviceOptions
	for _, opt := range opts {
		opt(&resolved)
	}

	svc := &Service{EndpointID: endpointID, queues: make(map[string]*Queue)}

	if resolved.telemetryCfg != nil {
		shutdown, err := telemetry.Init(*resolved.telemetryCfg)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		svc.telemetryShutdown = shutdown
	}

	for display, qcfg := range cfg.Queues {
		if !qcfg.IsEnabled {
			continue
		}
		if resolved.secretsClient != nil {
			resolvedConnStr, err := resolveConnectionString(context.Background(), resolved.secretsClient, qcfg.StorageConnectionString)
			if err != nil {
				_ = svc.Close()
				return nil, fmt.Errorf("resolving connection string for queue %q: %w", display, err)
			}
			qcfg.StorageConnectionString = resolvedConnStr
		}
		q, err := buildQueue(display, qcfg, endpointID, resolved.eventBus)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("building queue %q: %w", display, err)
		}
		if resolved.eventBus != nil {
			q.Receiver.SetEventBus(resolved.eventBus)
			q.Janitor.SetEventBus(resolved.eventBus)
		}
		svc.queues[display] = q
	}

	return svc, nil
}

// resolveConnectionString dereferences a "secret://<key>" value through
// client; any other value passes through unchanged as a literal credential.
func resolveConnectionString(ctx context.Context, client secrets.Client, value string) (string, error) {
	if !strings.HasPrefix(value, secretConnectionStringPrefix) {
		return value, nil
	}
	key := strings.TrimPrefix(value, secretConnectionStringPrefix)
	return client.GetSecret(ctx, key)
}

// Queue returns the façade for display, or ErrQueueNotConfigured.
func (s *Service) Queue(display string) (*Queue, error) {
	q, ok := s.queues[display]
	if !ok {
		return nil, ErrQueueNotConfigured(display)
	}
	return q, nil
}

// Send is a convenience wrapper over Queue(display).Send.
func (s *Service) Send(ctx context.Context, display string, body []byte, opts SendOptions) (string, error) {
	q, err := s.Queue(display)
	if err != nil {
		return "", err
	}
	return q.Send(ctx, body, opts)
}

// Close tears down every managed queue, collecting but not stopping early
// on individual failures so that one misbehaving backend doesn't strand
// the others' resources open.
func (s *Service) Close() error {
	var firstErr error
	for _, q := range s.queues {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildQueue resolves a QueueConfig's backend adapters from its
// StorageConnectionString and assembles the per-queue component graph
// (spec.md §6.2 schema naming, §4.1-§4.8 component wiring).
func buildQueue(display string, cfg QueueConfig, endpointID string, eventBus events.Bus) (*Queue, error) {
	key, err := NewQueueKey(display)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StorageConnectionString == "" && cfg.Mode.permitsSend() {
		return nil, ErrMissingConnectionString(key.Display())
	}

	blobStore, notifyQ, stateTable, topicTable, err := provisionBackend(key, cfg)
	if err != nil {
		return nil, err
	}
	if eventBus != nil {
		blobStore = blob.NewEventedStore(blobStore, eventBus, key.Display())
	}

	ordering := NewOrderingEngine(cfg.SlidingWindowDuration, cfg.TopicAffinityTtl)

	q := &Queue{
		Key:        key,
		Config:     cfg,
		blobStore:  blobStore,
		stateTable: stateTable,
		topicTable: topicTable,
		notifyQ:    notifyQ,
		Sender:     NewSender(key, cfg, blobStore, stateTable, topicTable, notifyQ),
		Receiver:   NewReceiver(key, cfg, endpointID, blobStore, stateTable, topicTable, notifyQ, ordering),
		Poison:     NewPoisonHandler(key, stateTable),
		Janitor:    NewJanitor(key, cfg, blobStore, stateTable, topicTable, notifyQ),
	}
	return q, nil
}

// provisionBackend constructs the raw adapters for a queue and wraps them
// in the instrumentation/resilience decorators (spec.md §4.2). The queue
// and table backends follow StorageConnectionString: empty or the literal
// "memory" selects the in-memory adapters (used for tests, and for
// receive-only queues fed purely by OnReceived), anything else selects the
// Azure adapters. The blob backend is chosen independently via BlobDriver,
// so a queue can keep message bodies on local disk even while its
// notification/state backends are Azure-backed.
func provisionBackend(key QueueKey, cfg QueueConfig) (blob.Store, queue.Queue, table.Table, table.Table, error) {
	useAzureBackend := cfg.StorageConnectionString != "" && cfg.StorageConnectionString != memoryConnectionString

	blobStore, err := provisionBlobStore(cfg, key, useAzureBackend)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	if !useAzureBackend {
		return blobStore, queuememory.New(), tablememory.New(), tablememory.New(), nil
	}

	rawQueue, err := azservicebus.New(azservicebus.Config{Namespace: cfg.StorageConnectionString, Queue: QueueName(key)})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	notifyQ := queue.NewResilientQueue(
		queue.NewInstrumentedQueue(rawQueue, key.Display()),
		key.Display(),
		queue.ResilientConfig{
			CircuitBreakerEnabled:   true,
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   30 * time.Second,
			RetryEnabled:            true,
			RetryMaxAttempts:        3,
			RetryBackoff:            100 * time.Millisecond,
		},
	)

	rawStateTable, err := azcosmos.New(azcosmos.Config{AccountEndpoint: cfg.StorageConnectionString, Database: "reliablequeue", Container: StateTableName(key)})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	stateTable := table.NewInstrumentedTable(rawStateTable, key.Display()+".state")

	rawTopicTable, err := azcosmos.New(azcosmos.Config{AccountEndpoint: cfg.StorageConnectionString, Database: "reliablequeue", Container: TopicTableName(key)})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	topicTable := table.NewInstrumentedTable(rawTopicTable, key.Display()+".topic")

	logger.L().Info("provisioned azure-backed queue", "queue", key.Display())
	return blobStore, notifyQ, stateTable, topicTable, nil
}

// provisionBlobStore selects and constructs the body-blob backend per
// cfg.BlobDriver, defaulting to whichever family the rest of the backend
// uses (azure when useAzureBackend, memory otherwise) when BlobDriver is
// unset. Only the local and azure drivers are wrapped with the
// tracing/logging decorator; the memory driver exists purely for tests, so
// there's nothing useful to trace.
func provisionBlobStore(cfg QueueConfig, key QueueKey, useAzureBackend bool) (blob.Store, error) {
	driver := cfg.BlobDriver
	if driver == "" {
		if useAzureBackend {
			driver = "azure"
		} else {
			driver = "memory"
		}
	}

	switch driver {
	case "local":
		rawBlob, err := bloblocal.New(blob.Config{Driver: driver, LocalDir: cfg.BlobLocalDir})
		if err != nil {
			return nil, err
		}
		return blob.NewInstrumentedStore(rawBlob, key.Display()), nil
	case "azure":
		rawBlob, err := blobazure.New(blob.Config{Driver: driver, AccountName: cfg.StorageConnectionString, Container: BlobContainerName(key)})
		if err != nil {
			return nil, err
		}
		return blob.NewInstrumentedStore(rawBlob, key.Display()), nil
	default:
		return blobmemory.New(blob.Config{Driver: driver}), nil
	}
}
