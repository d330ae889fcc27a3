// Package blobstore keeps the raw evidence files received by the reference
// ledger, keyed by their SHA-256 digest.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrObjectNotFound is returned by Get when no object has the given key.
var ErrObjectNotFound = errors.New("object not found in blob store")

// FileStore is the interface the ledger uses to keep uploaded evidence files.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get returns the object body. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Key returns the object key for a file with the given SHA-256 digest.
func Key(sha256Hex string) string { return "sha256/" + sha256Hex }

// Discard accepts and drops every object. Get always reports
// ErrObjectNotFound.
type Discard struct{}

var _ FileStore = Discard{}

// Put implements FileStore.
func (Discard) Put(_ context.Context, _ string, r io.Reader, _ int64, _ string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// Get implements FileStore.
func (Discard) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, ErrObjectNotFound
}

// Memory keeps objects in process memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ FileStore = (*Memory)(nil)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put implements FileStore.
func (m *Memory) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

// Get implements FileStore.
func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
