package reliablequeue

import "time"

// Mode gates which operations a queue permits (spec.md §6.1).
type Mode string

const (
	ModeSend    Mode = "Send"
	ModeReceive Mode = "Receive"
	ModeBoth    Mode = "Both"
)

func (m Mode) permitsSend() bool    { return m == ModeSend || m == ModeBoth }
func (m Mode) permitsReceive() bool { return m == ModeReceive || m == ModeBoth }

// QueueConfig holds the recognized per-queue options (spec.md §6.1).
// Loading this struct from environment/files is deliberately out of scope
// (spec.md §1); callers construct it directly or via whatever config
// loader wraps pkg/config.Load in the hosting process.
type QueueConfig struct {
	// IsEnabled gates whether the queue is usable at all; if false, the
	// queue is inert.
	IsEnabled bool `validate:"-"`

	// CreateListener, if true, runs the pull-loop Receiver; otherwise the
	// queue receives only via onReceived.
	CreateListener bool

	// Mode gates which of send/receive the queue's public API permits.
	Mode Mode `validate:"oneof=Send Receive Both"`

	// StorageConnectionString holds backend credentials. Empty means
	// receive-only via external push (no outbound backend connection is
	// opened for this queue); buildQueue rejects empty here for any Mode
	// that permits send. The literal "memory"
	// explicitly requests the in-memory backend regardless of Mode, for
	// tests and local experimentation.
	StorageConnectionString string

	// BlobDriver selects the body-blob backend independently of
	// StorageConnectionString ("memory", "local", or "azure"); left empty,
	// it follows StorageConnectionString (memory when that is empty or
	// "memory", azure otherwise). "local" is useful for running the queue/table backends
	// against Azure while keeping message bodies on local disk in
	// development.
	BlobDriver string `validate:"omitempty,oneof=memory local azure"`

	// BlobLocalDir is the root directory for BlobDriver="local".
	BlobLocalDir string

	DefaultTimeout        time.Duration `validate:"gt=0"`
	MaxAttempts           int           `validate:"gt=0"`
	MessageTimeToLive     time.Duration `validate:"gt=0"`
	SlidingWindowDuration time.Duration `validate:"gt=0"`
	TopicAffinityTtl      time.Duration `validate:"gt=0"`

	// MaxConcurrentDeliveries bounds the number of handler invocations the
	// Receiver runs concurrently for this queue (expansion of spec.md §5's
	// "the receiver bounds the number of in-flight messages per queue").
	MaxConcurrentDeliveries int `validate:"gt=0"`

	// MaxPayloadBytes bounds a single send() body (expansion; the backend
	// blob/notification primitives both impose practical size limits).
	MaxPayloadBytes int `validate:"gt=0"`
}

// Validate checks cfg's struct tags, catching misconfiguration (a zero
// MaxAttempts, an unrecognized Mode) before a queue is built around it
// rather than failing obscurely on first use.
func (c QueueConfig) Validate() error {
	if err := appValidator.ValidateStruct(c); err != nil {
		return ErrInvalidQueueConfig(err)
	}
	return nil
}

// DefaultQueueConfig returns the spec.md §6.1 defaults, plus this
// implementation's expansion defaults for MaxConcurrentDeliveries and
// MaxPayloadBytes.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		IsEnabled:               true,
		CreateListener:          false,
		Mode:                    ModeBoth,
		BlobLocalDir:            "./data/blobs",
		DefaultTimeout:          30 * time.Second,
		MaxAttempts:             3,
		MessageTimeToLive:       172800 * time.Second,
		SlidingWindowDuration:   1 * time.Second,
		TopicAffinityTtl:        30 * time.Second,
		MaxConcurrentDeliveries: 32,
		MaxPayloadBytes:         4 * 1024 * 1024,
	}
}

// ReliableQueueConfig is the root configuration: a mapping from queue
// display-name to per-queue settings (spec.md §6.1).
type ReliableQueueConfig struct {
	Queues map[string]QueueConfig
}

// QueueConfig looks up the configuration for display, or returns
// ErrQueueNotConfigured.
func (c ReliableQueueConfig) QueueConfig(display string) (QueueConfig, error) {
	cfg, ok := c.Queues[display]
	if !ok {
		return QueueConfig{}, ErrQueueNotConfigured(display)
	}
	return cfg, nil
}
