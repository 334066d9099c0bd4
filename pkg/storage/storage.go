// Package storage provides small key/value stores with Web Storage
// semantics: string keys, string values, whole-value replacement.
// The tracker keeps its session id in one and the delivery queue keeps
// its failed events in another.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: key not found")

type Storage interface {
	// GetItem returns ErrNotFound when the key is absent or expired.
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
