// Package kvstore defines the durable key-value storage contract the session
// layer persists through. The store is an un-transacted shared key space:
// there are no atomicity guarantees across keys, so writers always write full
// records, never partial fields.
package kvstore

import "context"

// Store is the durable key-value contract. Values are opaque strings (JSON
// encoded by convention, except where a caller deliberately stores a raw
// token). Absence of a key is reported as (_, false, nil), never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys []string) error
}
