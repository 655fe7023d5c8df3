package kv

import "context"

// Entry is one key/value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the key-value collaborator used for record persistence. It is
// deliberately opaque: callers never see backend errors as typed values,
// only as wrapped errors.
//
// Get returns (nil, nil) when the key does not exist. List returns every
// entry whose key starts with prefix, ordered by key, so a scan over the
// same data always visits records in the same order.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
}
