package docstore

import (
	"context"
	"encoding/json"
)

// DocumentStore defines the persistence surface consumed by the
// synchronization and scheduling layers, so store failures can be
// faked in tests without a real database.
type DocumentStore interface {
	Get(ctx context.Context, key string) (Document, error)
	Put(ctx context.Context, key string, rev int64, data json.RawMessage) (int64, error)
	List(ctx context.Context, prefix string) ([]Document, error)
	Count(ctx context.Context, prefix string) (int, error)
}

var _ DocumentStore = (*Store)(nil)
