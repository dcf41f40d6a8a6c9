package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage provides an abstraction over key-value style document storage.
// Paths use forward slashes regardless of backend.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// DirWatchable is implemented by backends whose contents live on a local
// filesystem and can be watched for changes. Backends without it are
// observed by polling instead.
type DirWatchable interface {
	// Root returns the absolute directory that backs the store.
	Root() string
}
