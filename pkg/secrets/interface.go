// Package secrets provides a unified interface for secret management services.
//
// Supported backends:
//   - Azure Key Vault (adapters/azure)
//   - In-memory (adapters/memory)
//
// Usage:
//
//	import "github.com/open-collar/reliablequeue/pkg/secrets/adapters/memory"
//
//	client := memory.New()
//	secret, err := client.GetSecret(ctx, "database-password")
package secrets

import "context"

// Client abstracts secret retrieval.
type Client interface {
	// GetSecret retrieves a secret value by key/name.
	GetSecret(ctx context.Context, key string) (string, error)

	// Close closes any underlying connections.
	Close() error
}
