// Package azcosmos adapts Azure Cosmos DB's NoSQL API to the table.Table
// interface, using the item's ETag as the optimistic-concurrency token for
// Replace.
package azcosmos

import (
	stderrors "errors"

	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	sdk "github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/open-collar/reliablequeue/pkg/errors"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// Config configures the Cosmos DB adapter.
type Config struct {
	AccountEndpoint string // e.g. "https://myaccount.documents.azure.com:443/"
	Database        string
	Container       string
}

// Adapter implements table.Table over a single Cosmos DB container whose
// partition key path is "/partitionKey" and item id is the row key.
type Adapter struct {
	container *sdk.ContainerClient
}

// row is the wire document shape stored in Cosmos: id is the row key,
// partitionKey is the partition, and properties carries the caller's
// arbitrary fields.
type row struct {
	ID           string         `json:"id"`
	PartitionKey string         `json:"partitionKey"`
	Properties   map[string]any `json:"properties"`
}

// New dials the given Cosmos DB account and binds to cfg.Database/cfg.Container.
func New(cfg Config) (*Adapter, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, table.ErrConnectionFailed(err)
	}

	client, err := sdk.NewClient(cfg.AccountEndpoint, cred, nil)
	if err != nil {
		return nil, table.ErrConnectionFailed(err)
	}

	container, err := client.NewContainer(cfg.Database, cfg.Container)
	if err != nil {
		return nil, table.ErrConnectionFailed(err)
	}

	return &Adapter{container: container}, nil
}

func partitionKeyOf(pk string) sdk.PartitionKey {
	return sdk.NewPartitionKeyString(pk)
}

func (a *Adapter) Insert(ctx context.Context, item table.Item) (*table.Item, error) {
	doc := row{ID: item.RowKey, PartitionKey: item.PartitionKey, Properties: item.Properties}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, table.ErrQueryFailed(err)
	}

	resp, err := a.container.CreateItem(ctx, partitionKeyOf(item.PartitionKey), body, nil)
	if err != nil {
		if isConflict(err) {
			return nil, table.ErrAlreadyExists(item.PartitionKey, item.RowKey)
		}
		return nil, classify(err)
	}

	out := item
	out.ETag = string(resp.ETag)
	return &out, nil
}

func (a *Adapter) Replace(ctx context.Context, item table.Item) (*table.Item, error) {
	doc := row{ID: item.RowKey, PartitionKey: item.PartitionKey, Properties: item.Properties}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, table.ErrQueryFailed(err)
	}

	opts := &sdk.ItemOptions{}
	if item.ETag != "" {
		etag := azcoreETag(item.ETag)
		opts.IfMatchEtag = &etag
	}

	resp, err := a.container.ReplaceItem(ctx, partitionKeyOf(item.PartitionKey), item.RowKey, body, opts)
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, table.ErrETagMismatch(item.PartitionKey, item.RowKey)
		}
		if isNotFound(err) {
			return nil, table.ErrNotFound(item.PartitionKey, item.RowKey, err)
		}
		return nil, classify(err)
	}

	out := item
	out.ETag = string(resp.ETag)
	return &out, nil
}

func (a *Adapter) Get(ctx context.Context, partitionKey, rowKey string) (*table.Item, error) {
	resp, err := a.container.ReadItem(ctx, partitionKeyOf(partitionKey), rowKey, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, table.ErrNotFound(partitionKey, rowKey, err)
		}
		return nil, classify(err)
	}

	var doc row
	if err := json.Unmarshal(resp.Value, &doc); err != nil {
		return nil, table.ErrQueryFailed(err)
	}

	return &table.Item{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		ETag:         string(resp.ETag),
		Properties:   doc.Properties,
	}, nil
}

func (a *Adapter) Query(ctx context.Context, opts table.QueryOptions) ([]*table.Item, error) {
	query := "SELECT * FROM c WHERE c.partitionKey = @pk"
	params := []sdk.QueryParameter{{Name: "@pk", Value: opts.PartitionKey}}
	if opts.RowKeyPrefix != "" {
		query += " AND STARTSWITH(c.id, @prefix)"
		params = append(params, sdk.QueryParameter{Name: "@prefix", Value: opts.RowKeyPrefix})
	}
	query += " ORDER BY c.id ASC"

	pager := a.container.NewQueryItemsPager(query, partitionKeyOf(opts.PartitionKey), &sdk.QueryOptions{
		QueryParameters: params,
	})

	var results []*table.Item
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, raw := range page.Items {
			var doc row
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, table.ErrQueryFailed(err)
			}
			var meta struct {
				ETag string `json:"_etag"`
			}
			_ = json.Unmarshal(raw, &meta)
			results = append(results, &table.Item{
				PartitionKey: doc.PartitionKey,
				RowKey:       doc.ID,
				ETag:         meta.ETag,
				Properties:   doc.Properties,
			})
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

func (a *Adapter) Delete(ctx context.Context, partitionKey, rowKey string) error {
	_, err := a.container.DeleteItem(ctx, partitionKeyOf(partitionKey), rowKey, nil)
	if err != nil {
		if isNotFound(err) {
			return table.ErrNotFound(partitionKey, rowKey, err)
		}
		return classify(err)
	}
	return nil
}

func (a *Adapter) Close() error {
	return nil
}

// EnsureTable is a no-op: it does not create the backing container, which
// must already exist.
func (a *Adapter) EnsureTable(ctx context.Context, name, partitionKeyPath string) error {
	return nil
}

func azcoreETag(s string) sdk.ETag {
	return sdk.ETag(s)
}

func isConflict(err error) bool {
	return statusCode(err) == 409
}

func isPreconditionFailed(err error) bool {
	return statusCode(err) == 412
}

func isNotFound(err error) bool {
	return statusCode(err) == 404
}

// statusCode extracts the HTTP status from an azcore response error, or 0
// if err is not of that shape.
func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// classify maps a Cosmos request failure that isn't one of the named
// conflict/precondition/not-found cases above to the engine's
// transient/permanent taxonomy: throttling and server-side failures are
// retried, everything else (bad request, denied permission, a malformed
// document) fails fast.
func classify(err error) *errors.AppError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return table.ErrRequestTimedOut(err)
	}
	switch statusCode(err) {
	case 429, 500, 503:
		return table.ErrConnectionFailed(err)
	default:
		return table.ErrRequestFailed(err)
	}
}
