// Package storage holds evidence photos. S3Store is the production backend;
// MemoryStore serves local development and tests.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/ticketfight/appeal-service/internal/domain"
)

// ErrNotFound is wrapped in a *domain.StorageError when a key is absent.
var ErrNotFound = errors.New("object not found")

// ObjectInfo is the metadata of a stored photo.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// PresignedUpload lets a client upload directly to the bucket.
type PresignedUpload struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// PhotoStore is implemented by S3Store and MemoryStore.
type PhotoStore interface {
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Put(ctx context.Context, key, contentType string, size int64, body io.Reader) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (*PresignedUpload, error)
}

// IsNotFound reports whether err names a missing object.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

type memObject struct {
	contentType string
	data        []byte
}

// MemoryStore is an in-process PhotoStore. Presigned URLs point at baseURL
// and are not enforceable.
type MemoryStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]memObject
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string]memObject)}
}

func (m *MemoryStore) Stat(_ context.Context, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, &domain.StorageError{Key: key, Reason: "not found", Err: ErrNotFound}
	}
	return &ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *MemoryStore) Put(_ context.Context, key, contentType string, size int64, body io.Reader) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, size+1))
	if err != nil {
		return &domain.StorageError{Key: key, Reason: "read body", Err: err}
	}
	if n != size {
		return &domain.StorageError{Key: key, Reason: fmt.Sprintf("size mismatch: declared %d, got %d", size, n)}
	}
	m.mu.Lock()
	m.objects[key] = memObject{contentType: contentType, data: buf.Bytes()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?expires=%d", m.baseURL, url.PathEscape(key), int(ttl.Seconds())), nil
}

func (m *MemoryStore) PresignPut(_ context.Context, key, contentType string, _ int64, ttl time.Duration) (*PresignedUpload, error) {
	return &PresignedUpload{
		Key:       key,
		URL:       fmt.Sprintf("%s/%s", m.baseURL, url.PathEscape(key)),
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: time.Now().Add(ttl).UTC(),
	}, nil
}
