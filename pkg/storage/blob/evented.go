package blob

import (
	"context"
	"io"
	"time"

	"github.com/open-collar/reliablequeue/pkg/events"
)

// EventedStore decorates a Store, publishing a domain event on every
// successful Upload/Delete. source identifies the owning queue in the
// published Event.Source, matching NewInstrumentedStore's naming.
type EventedStore struct {
	next   Store
	bus    events.Bus
	source string
}

// NewEventedStore wraps next so its Upload/Delete calls also publish
// through bus.
func NewEventedStore(next Store, bus events.Bus, source string) *EventedStore {
	return &EventedStore{next: next, bus: bus, source: source}
}

func (s *EventedStore) Upload(ctx context.Context, key string, data io.Reader) error {
	err := s.next.Upload(ctx, key, data)
	if err == nil {
		_ = s.bus.Publish(ctx, "blob.uploaded", events.Event{
			ID:        key,
			Type:      "blob.uploaded",
			Source:    s.source,
			Timestamp: time.Now(),
			Payload: map[string]interface{}{
				"key": key,
			},
		})
	}
	return err
}

func (s *EventedStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.next.Download(ctx, key)
}

func (s *EventedStore) Delete(ctx context.Context, key string) error {
	err := s.next.Delete(ctx, key)
	if err == nil {
		_ = s.bus.Publish(ctx, "blob.deleted", events.Event{
			ID:        key,
			Type:      "blob.deleted",
			Source:    s.source,
			Timestamp: time.Now(),
			Payload: map[string]interface{}{
				"key": key,
			},
		})
	}
	return err
}

func (s *EventedStore) URL(key string) string {
	return s.next.URL(key)
}
