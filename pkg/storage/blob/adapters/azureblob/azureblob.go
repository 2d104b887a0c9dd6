// Package azureblob adapts Azure Blob Storage to the blob.Store interface
// (spec.md §1 backend mapping: blob store).
package azureblob

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/open-collar/reliablequeue/pkg/errors"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
)

// Store adapts an Azure Storage account + container to blob.Store. Every
// call targets Container fixed at construction, so callers work purely in
// object keys the way the other adapters do.
type Store struct {
	client    *azblob.Client
	container string
}

// New dials accountName via ambient credentials and binds to cfg.Container.
func New(cfg blob.Config) (blob.Store, error) {
	if cfg.AccountName == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "azure account name is required", nil)
	}
	if cfg.Container == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "azure container is required", nil)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain azure credential")
	}

	url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
	client, err := azblob.NewClient(url, cred, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create azure blob client")
	}

	return &Store{client: client, container: cfg.Container}, nil
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return errors.Internal("failed to read blob body", err)
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, key, body, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if statusCode(err) == 404 {
			return nil, errors.NotFound("blob not found", err)
		}
		return nil, classify(err)
	}
	return resp.Body, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, key, nil); err != nil {
		if statusCode(err) == 404 {
			return errors.NotFound("blob not found", err)
		}
		return classify(err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return "https://" + s.container + ".blob.core.windows.net/" + s.container + "/" + key
}

// List returns every object key currently stored in the container, for
// diagnostics and for an operator reconciling the Janitor's blob-orphan
// sweep against the live container.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var results []string
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				results = append(results, *item.Name)
			}
		}
	}
	return results, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// classify maps a blob request failure not already handled as a 404 to
// the engine's transient/permanent taxonomy: throttling and server-side
// failures are retried, everything else (bad request, denied permission)
// fails fast.
func classify(err error) *errors.AppError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.DeadlineExceeded("blob request deadline exceeded", err)
	}
	switch statusCode(err) {
	case 429, 500, 503:
		return errors.Unavailable("blob backend temporarily unavailable", err)
	default:
		return errors.Internal("blob request failed", err)
	}
}
