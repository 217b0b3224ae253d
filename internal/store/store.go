package store

import "context"

// Well-known keys. The supervisor treats values as opaque strings; callers
// decide how to interpret them.
const (
	KeyLastWorkingDirectory = "last_working_directory"
	KeyLastEndpoint         = "last_endpoint"
)

// Store is a minimal key-value persistence interface used to retain small
// cross-session values such as the last working directory. It is external to
// the supervisor core, which never depends on its contents.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
