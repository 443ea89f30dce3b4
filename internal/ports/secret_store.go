package ports

import "context"

// SecretStore holds credentials the bridge must not keep in plain config,
// such as the Mattermost bot token.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
