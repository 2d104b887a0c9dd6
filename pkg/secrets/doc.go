/*
Package secrets provides a unified interface for secret management.

It supports these backends to abstract away cloud-specific implementations:
  - Memory: For local development and testing
  - Azure Key Vault

Usage:

	import "github.com/open-collar/reliablequeue/pkg/secrets"
	import "github.com/open-collar/reliablequeue/pkg/secrets/adapters/memory"

	// Create a manager
	store := memory.New()

	// Store and key
	err := store.SetSecret(ctx, "db-pass", "super-secret")
	val, err := store.GetSecret(ctx, "db-pass")
*/
package secrets
