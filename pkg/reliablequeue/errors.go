package reliablequeue

import (
	"fmt"

	"github.com/open-collar/reliablequeue/pkg/errors"
)

// Error codes specific to the reliable-queue engine (spec.md §7).
const (
	CodeQueueKeyInvalid         = "RQ_QUEUE_KEY_INVALID"
	CodeTopicInvalid            = "RQ_TOPIC_INVALID"
	CodePayloadTooLarge         = "RQ_PAYLOAD_TOO_LARGE"
	CodeQueueDisabled           = "RQ_QUEUE_DISABLED"
	CodeModeDoesNotPermitSend   = "RQ_MODE_NO_SEND"
	CodeModeDoesNotPermitRecv   = "RQ_MODE_NO_RECEIVE"
	CodeMissingConnectionString = "RQ_MISSING_CONNECTION_STRING"
	CodeMessageStateError       = "RQ_MESSAGE_STATE_ERROR"
	CodeQueueNotConfigured      = "RQ_QUEUE_NOT_CONFIGURED"
	CodeInvalidQueueConfig      = "RQ_INVALID_QUEUE_CONFIG"
	CodeMetadataInvalid         = "RQ_METADATA_INVALID"
	CodeCreateListenerDisabled  = "RQ_CREATE_LISTENER_DISABLED"
)

// ErrQueueKeyInvalid reports an empty or whitespace-only queue-key display
// string. Non-retryable.
func ErrQueueKeyInvalid(display string) *errors.AppError {
	return errors.New(errors.Code(CodeQueueKeyInvalid), fmt.Sprintf("queue key %q is invalid: must be non-empty and non-whitespace", display), nil)
}

// ErrTopicInvalid reports a topic string rejected during construction.
// Present for symmetry with ErrQueueKeyInvalid; Topic currently accepts
// all input (resolving blank input to Default), so this is unused by
// NewTopic itself but retained for callers validating topic length/charset
// policies layered on top.
func ErrTopicInvalid(display string) *errors.AppError {
	return errors.New(errors.Code(CodeTopicInvalid), fmt.Sprintf("topic %q is invalid", display), nil)
}

// ErrPayloadTooLarge reports a send() body exceeding the backend's blob or
// notification size limits.
func ErrPayloadTooLarge(sizeBytes, maxBytes int) *errors.AppError {
	return errors.New(errors.Code(CodePayloadTooLarge), fmt.Sprintf("payload size %d exceeds maximum %d bytes", sizeBytes, maxBytes), nil)
}

// ErrQueueDisabled reports an operation against a queue whose IsEnabled is
// false.
func ErrQueueDisabled(queueKey string) *errors.AppError {
	return errors.New(errors.Code(CodeQueueDisabled), fmt.Sprintf("queue %q is disabled", queueKey), nil)
}

// ErrModeDoesNotPermitSend reports a send() call against a Receive-only queue.
func ErrModeDoesNotPermitSend(queueKey string) *errors.AppError {
	return errors.New(errors.Code(CodeModeDoesNotPermitSend), fmt.Sprintf("queue %q does not permit send in its configured mode", queueKey), nil)
}

// ErrModeDoesNotPermitReceive reports a subscribe()/onReceived() call
// against a Send-only queue.
func ErrModeDoesNotPermitReceive(queueKey string) *errors.AppError {
	return errors.New(errors.Code(CodeModeDoesNotPermitRecv), fmt.Sprintf("queue %q does not permit receive in its configured mode", queueKey), nil)
}

// ErrCreateListenerDisabled reports a Subscribe() call against a queue
// configured with CreateListener=false; such a queue receives only via
// OnReceived's external push path (spec.md §6.1).
func ErrCreateListenerDisabled(queueKey string) *errors.AppError {
	return errors.New(errors.Code(CodeCreateListenerDisabled), fmt.Sprintf("queue %q has CreateListener=false and does not run a pull-loop receiver", queueKey), nil)
}

// ErrMissingConnectionString reports a queue configured without backend
// credentials attempting an operation that requires them.
func ErrMissingConnectionString(queueKey string) *errors.AppError {
	return errors.New(errors.Code(CodeMissingConnectionString), fmt.Sprintf("queue %q has no storage connection string configured", queueKey), nil)
}

// ErrMessageStateError reports a transition attempted against a record
// whose actual state no longer matches the expected precondition. Callers
// re-read and re-evaluate; this is never retried blindly.
func ErrMessageStateError(messageID string, expected, actual MessageState) *errors.AppError {
	return errors.New(errors.Code(CodeMessageStateError),
		fmt.Sprintf("message %s: expected state %s, actual %s", messageID, expected, actual), nil)
}

// ErrQueueNotConfigured reports a lookup for a queue display-name absent
// from the root configuration.
func ErrQueueNotConfigured(queueKey string) *errors.AppError {
	return errors.NotFound(fmt.Sprintf("queue %q is not configured", queueKey), nil)
}

// ErrInvalidQueueConfig reports a QueueConfig failing its struct-tag
// validation (see QueueConfig.Validate).
func ErrInvalidQueueConfig(cause error) *errors.AppError {
	return errors.InvalidArgument("queue configuration is invalid", cause)
}

// ErrMetadataInvalid reports a send() call's Metadata exceeding the
// entry-count or per-value size cap (see validateMetadata).
func ErrMetadataInvalid(reason string) *errors.AppError {
	return errors.InvalidArgument(reason, nil)
}
