package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"dds-go/internal/dds"
	"dds-go/internal/model"
)

// MemoryGateway is an in-memory StorageGateway for tests. Objects are
// "stored" by recording their key and size; tests mark transfers as done
// with PutObject and simulate outages with SetUnavailable.
// Safe for concurrent use.
type MemoryGateway struct {
	mu          sync.Mutex
	allocated   map[string]bool
	objects     map[string]int64 // key -> size
	unavailable error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		allocated: make(map[string]bool),
		objects:   make(map[string]int64),
	}
}

// PutObject records that a client transferred size bytes to key.
func (g *MemoryGateway) PutObject(key string, size int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = size
}

// SetUnavailable makes every subsequent call fail with a
// StorageUnavailableError wrapping cause; nil restores service.
func (g *MemoryGateway) SetUnavailable(cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailable = cause
}

func (g *MemoryGateway) down(provider *model.StorageProvider) error {
	if g.unavailable == nil {
		return nil
	}
	return &dds.StorageUnavailableError{Provider: provider.Name, Err: g.unavailable}
}

func (g *MemoryGateway) Allocate(_ context.Context, provider *model.StorageProvider, upload *model.Upload) (*dds.TransferInstruction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(provider); err != nil {
		return nil, err
	}

	g.allocated[upload.StorageKey] = true
	path := "/" + provider.Bucket + "/" + upload.StorageKey
	return &dds.TransferInstruction{
		HTTPVerb: "PUT",
		Host:     provider.URLRoot,
		Path:     path,
		URL:      provider.URLRoot + path + "?signature=test",
	}, nil
}

func (g *MemoryGateway) VerifyUpload(_ context.Context, provider *model.StorageProvider, upload *model.Upload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(provider); err != nil {
		return err
	}

	size, ok := g.objects[upload.StorageKey]
	if !ok {
		return fmt.Errorf("object %s not found in backend", upload.StorageKey)
	}
	if size != upload.Size {
		return fmt.Errorf("object size %d does not match reported size %d", size, upload.Size)
	}
	return nil
}

func (g *MemoryGateway) TemporaryURL(_ context.Context, provider *model.StorageProvider, upload *model.Upload, filename string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.down(provider); err != nil {
		return "", err
	}

	if _, ok := g.objects[upload.StorageKey]; !ok {
		return "", fmt.Errorf("object %s not found in backend", upload.StorageKey)
	}
	return fmt.Sprintf("%s/%s/%s?filename=%s&signature=test",
		provider.URLRoot, provider.Bucket, upload.StorageKey, url.PathEscape(filename)), nil
}

var _ dds.StorageGateway = (*MemoryGateway)(nil)
