// Package azservicebus adapts Azure Service Bus peek-lock receive mode to
// the queue.Queue interface.
//
// A dequeued message's LockToken becomes the Delivery.Handle; Ack completes
// the message, Extend renews the lock, and Release abandons it. Service Bus
// has no native delayed-abandon, so Release with a non-zero delay is
// approximated by an immediate AbandonMessage — the message becomes visible
// again right away rather than after delay. Callers needing exact delay
// semantics (spec.md scenarios around sliding-window reordering) should use
// the memory adapter in tests and treat this as a best-effort approximation
// in production.
package azservicebus

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/open-collar/reliablequeue/pkg/errors"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
)

// Config configures the Service Bus adapter.
type Config struct {
	Namespace string // e.g. "myns" (resolved to myns.servicebus.windows.net)
	Queue     string
}

// Adapter implements queue.Queue over an Azure Service Bus queue.
type Adapter struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	receiver  *azservicebus.Receiver
	queueName string

	mu      sync.Mutex
	inFlight map[string]*azservicebus.ReceivedMessage
}

// New dials the given Service Bus namespace and opens a sender/receiver
// pair for cfg.Queue in peek-lock mode.
func New(cfg Config) (*Adapter, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	client, err := azservicebus.NewClient(cfg.Namespace+".servicebus.windows.net", cred, nil)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	sender, err := client.NewSender(cfg.Queue, nil)
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	receiver, err := client.NewReceiverForQueue(cfg.Queue, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, queue.ErrConnectionFailed(err)
	}

	return &Adapter{
		client:    client,
		sender:    sender,
		receiver:  receiver,
		queueName: cfg.Queue,
		inFlight:  make(map[string]*azservicebus.ReceivedMessage),
	}, nil
}

func (a *Adapter) Enqueue(ctx context.Context, payload []byte, opts ...queue.EnqueueOption) error {
	o := queue.EnqueueOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	msg := &azservicebus.Message{Body: payload}
	if o.DeduplicationID != "" {
		msg.MessageID = &o.DeduplicationID
	}
	if o.Delay > 0 {
		scheduled := time.Now().Add(o.Delay)
		msg.ScheduledEnqueueTime = &scheduled
	}

	if err := a.sender.SendMessage(ctx, msg, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*queue.Delivery, error) {
	msgs, err := a.receiver.ReceiveMessages(ctx, 1, nil)
	if err != nil {
		return nil, classify(err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	msg := msgs[0]

	handle := msg.LockToken.String()

	a.mu.Lock()
	a.inFlight[handle] = msg
	a.mu.Unlock()

	if visibilityTimeout > 0 {
		lockedUntil := time.Now().Add(visibilityTimeout)
		_ = a.receiver.RenewMessageLock(ctx, msg, &azservicebus.RenewMessageLockOptions{})
		_ = lockedUntil // Service Bus controls the actual lock duration server-side; renewal aligns it.
	}

	return &queue.Delivery{
		Handle:        handle,
		Payload:       msg.Body,
		DeliveryCount: int32(msg.DeliveryCount),
	}, nil
}

func (a *Adapter) Ack(ctx context.Context, handle string) error {
	msg, ok := a.takeInFlight(handle)
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	if err := a.receiver.CompleteMessage(ctx, msg, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Extend(ctx context.Context, handle string, visibilityTimeout time.Duration) error {
	a.mu.Lock()
	msg, ok := a.inFlight[handle]
	a.mu.Unlock()
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	if err := a.receiver.RenewMessageLock(ctx, msg, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Release(ctx context.Context, handle string, delay time.Duration) error {
	msg, ok := a.takeInFlight(handle)
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	// Service Bus has no delayed-abandon primitive; delay is best-effort
	// ignored here (see package doc).
	if err := a.receiver.AbandonMessage(ctx, msg, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) Close() error {
	_ = a.sender.Close(context.Background())
	_ = a.receiver.Close(context.Background())
	return a.client.Close(context.Background())
}

// EnsureQueue satisfies queue.Provisioner. Service Bus queue topology is
// managed out-of-band (ARM/Bicep) in production; this is a no-op guard for
// callers that expect a Provisioner.
func (a *Adapter) EnsureQueue(ctx context.Context, name string) error {
	return nil
}

func (a *Adapter) takeInFlight(handle string) (*azservicebus.ReceivedMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg, ok := a.inFlight[handle]
	if ok {
		delete(a.inFlight, handle)
	}
	return msg, ok
}

// classify maps a Service Bus SDK error to the engine's transient/permanent
// taxonomy: a timed-out or momentarily disconnected link is retried,
// everything else (unauthorized, a malformed message, a missing entity)
// fails fast rather than spinning the resilient queue's retry/breaker.
func classify(err error) *errors.AppError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return queue.ErrRequestTimedOut(err)
	}
	var sbErr *azservicebus.Error
	if stderrors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeTimeout, azservicebus.CodeConnectionLost:
			return queue.ErrConnectionFailed(err)
		case azservicebus.CodeNotFound:
			return queue.ErrNotFound(sbErr.Error(), err)
		case azservicebus.CodeLockLost:
			return queue.ErrLeaseExpired(err)
		}
	}
	return queue.ErrRequestFailed(err)
}
