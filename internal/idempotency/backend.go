package idempotency

import (
	"context"
	"sync"
)

// Row is the durable state of one idempotency key.
type Row struct {
	Key         string
	RequestHash string
	Method      string
	Path        string
	Status      int
	Body        []byte
	ContentType string
	InProgress  bool
}

func (r Row) record(servedBy string) Record {
	return Record{
		Key:         r.Key,
		RequestHash: r.RequestHash,
		Status:      r.Status,
		Body:        r.Body,
		ContentType: r.ContentType,
		ServedBy:    servedBy,
	}
}

// Backend is the source of truth for idempotency keys.
type Backend interface {
	Name() string
	// Get returns ErrNotFound for unknown keys.
	Get(ctx context.Context, key string) (*Row, error)
	// Reserve inserts an in-progress row; false means the key already exists.
	Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error)
	// Finalize stores the response for an in-progress key owned by requestHash.
	Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Row, error)
	// Release deletes an in-progress key owned by requestHash.
	Release(ctx context.Context, key, requestHash string) error
}

// MemoryBackend keeps keys in process memory.
type MemoryBackend struct {
	mu   sync.Mutex
	rows map[string]Row
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]Row)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(ctx context.Context, key string) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (m *MemoryBackend) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[key]; exists {
		return false, nil
	}
	m.rows[key] = Row{
		Key:         key,
		RequestHash: requestHash,
		Method:      method,
		Path:        path,
		ContentType: "application/json",
		InProgress:  true,
	}
	return true, nil
}

func (m *MemoryBackend) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok || row.RequestHash != requestHash || !row.InProgress {
		return nil, ErrNotFound
	}
	row.Status = status
	row.Body = append([]byte(nil), body...)
	row.ContentType = contentType
	row.InProgress = false
	m.rows[key] = row
	return &row, nil
}

func (m *MemoryBackend) Release(ctx context.Context, key, requestHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[key]; ok && row.RequestHash == requestHash && row.InProgress {
		delete(m.rows, key)
	}
	return nil
}
