package queue

import "github.com/open-collar/reliablequeue/pkg/errors"

// Error codes for FIFO-queue operations.
const (
	CodeConnectionFailed = "QUEUE_CONN_FAILED"
	CodeNotFound         = "QUEUE_NOT_FOUND"
	CodeEnqueueFailed    = "QUEUE_ENQUEUE_FAILED"
	CodeDequeueFailed    = "QUEUE_DEQUEUE_FAILED"
	CodeLeaseExpired     = "QUEUE_LEASE_EXPIRED"
	CodeAckFailed        = "QUEUE_ACK_FAILED"
	CodeClosed           = "QUEUE_CLOSED"
)

// ErrConnectionFailed creates an error for backend connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to connect to queue backend", err)
}

// ErrNotFound creates an error for a missing queue resource.
func ErrNotFound(name string, err error) *errors.AppError {
	return errors.NotFound("queue not found: "+name, err)
}

// ErrEnqueueFailed creates an error for enqueue failures.
func ErrEnqueueFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to enqueue message", err)
}

// ErrDequeueFailed creates an error for dequeue failures.
func ErrDequeueFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to dequeue message", err)
}

// ErrLeaseExpired creates an error for operations against a handle whose
// lease has already expired (e.g. Ack/Extend racing the backend timeout).
func ErrLeaseExpired(err error) *errors.AppError {
	return errors.Conflict("lease already expired", err)
}

// ErrAckFailed creates an error for ack/release/extend failures.
func ErrAckFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to settle message", err)
}

// ErrRequestFailed creates an error for a backend request that was
// rejected for reasons unrelated to connectivity or throttling. Not
// transient: callers (and the resilient queue's retry/breaker) should not
// retry it.
func ErrRequestFailed(err error) *errors.AppError {
	return errors.Internal("queue request failed", err)
}

// ErrRequestTimedOut creates an error for a request that exceeded its
// deadline before the backend responded.
func ErrRequestTimedOut(err error) *errors.AppError {
	return errors.DeadlineExceeded("queue request deadline exceeded", err)
}

// ErrClosed creates an error for operations against a closed queue client.
func ErrClosed() *errors.AppError {
	return errors.InvalidArgument("queue client is closed", nil)
}
