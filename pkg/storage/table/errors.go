package table

import "github.com/open-collar/reliablequeue/pkg/errors"

// Error codes for table-store operations.
const (
	CodeConnectionFailed = "TABLE_CONN_FAILED"
	CodeNotFound         = "TABLE_NOT_FOUND"
	CodeAlreadyExists    = "TABLE_ALREADY_EXISTS"
	CodeETagMismatch     = "TABLE_ETAG_MISMATCH"
	CodeQueryFailed      = "TABLE_QUERY_FAILED"
	CodeClosed           = "TABLE_CLOSED"
)

// ErrConnectionFailed creates an error for backend connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to connect to table backend", err)
}

// ErrNotFound creates an error for a missing row.
func ErrNotFound(partitionKey, rowKey string, err error) *errors.AppError {
	return errors.NotFound("row not found: "+partitionKey+"/"+rowKey, err)
}

// ErrAlreadyExists creates an error for an Insert racing an existing row.
func ErrAlreadyExists(partitionKey, rowKey string) *errors.AppError {
	return errors.Conflict("row already exists: "+partitionKey+"/"+rowKey, nil)
}

// ErrETagMismatch creates an error for a Replace whose ETag precondition
// failed against the backend's current version.
func ErrETagMismatch(partitionKey, rowKey string) *errors.AppError {
	return errors.Conflict("etag mismatch: "+partitionKey+"/"+rowKey, nil)
}

// ErrQueryFailed creates an error for a failed partition scan.
func ErrQueryFailed(err error) *errors.AppError {
	return errors.Unavailable("failed to query table", err)
}

// ErrRequestFailed creates an error for a backend request that was
// rejected for reasons unrelated to connectivity or throttling (a bad
// request, a denied permission, a malformed document). Not transient:
// callers should not retry it.
func ErrRequestFailed(err error) *errors.AppError {
	return errors.Internal("table request failed", err)
}

// ErrRequestTimedOut creates an error for a request that exceeded its
// deadline before the backend responded.
func ErrRequestTimedOut(err error) *errors.AppError {
	return errors.DeadlineExceeded("table request deadline exceeded", err)
}

// ErrClosed creates an error for operations against a closed table client.
func ErrClosed() *errors.AppError {
	return errors.InvalidArgument("table client is closed", nil)
}
