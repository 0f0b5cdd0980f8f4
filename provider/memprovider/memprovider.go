// Package memprovider implements the storage provider contract on an
// in-process map. Used by tests and as a safe default backend when no
// remote storage is configured.
package memprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/types"
)

// BackendName is the registry name of this backend.
const BackendName = "memory"

type object struct {
	data        []byte
	etag        string
	contentType string
	metadata    map[string]string
	storedAt    time.Time
}

// Provider is a map-backed storage backend.
type Provider struct {
	mu      sync.RWMutex
	objects map[string]object
	healthy bool
}

// New creates an empty in-memory backend.
func New() *Provider {
	return &Provider{objects: make(map[string]object), healthy: true}
}

// Name returns the registry name.
func (p *Provider) Name() string { return BackendName }

// SetHealthy overrides the health state. Test hook for exercising the
// orchestrator's fail-fast path.
func (p *Provider) SetHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// Upload stores the local file's bytes under remotePath.
func (p *Provider) Upload(ctx context.Context, localPath, remotePath string, opts provider.UploadOptions) types.ObjectResult {
	start := time.Now()
	fail := func(err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fail(fmt.Errorf("read source: %w", err))
	}

	digest := sha256.Sum256(data)
	etag := hex.EncodeToString(digest[:])

	contentType := opts.ContentType
	if contentType == "" {
		contentType = provider.ContentTypeFor(localPath)
	}

	p.mu.Lock()
	p.objects[remotePath] = object{
		data:        data,
		etag:        etag,
		contentType: contentType,
		metadata:    opts.Metadata,
		storedAt:    time.Now().UTC(),
	}
	p.mu.Unlock()

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       etag,
		SizeBytes:  int64(len(data)),
		Duration:   time.Since(start),
		Message:    "stored",
		Metadata:   map[string]string{"contentType": contentType},
	}
}

// Download writes the stored object to localPath via temp-and-rename.
func (p *Provider) Download(ctx context.Context, remotePath, localPath string) types.ObjectResult {
	start := time.Now()
	fail := func(err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	p.mu.RLock()
	obj, ok := p.objects[remotePath]
	p.mu.RUnlock()
	if !ok {
		return fail(fmt.Errorf("object not found: %s", remotePath))
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-*")
	if err != nil {
		return fail(fmt.Errorf("create temp output: %w", err))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(obj.data); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		return fail(fmt.Errorf("write output: %w", err))
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(fmt.Errorf("close output: %w", err))
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(fmt.Errorf("commit output: %w", err))
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       obj.etag,
		SizeBytes:  int64(len(obj.data)),
		Duration:   time.Since(start),
		Message:    "downloaded",
	}
}

// Exists reports object presence. Not-found is (false, nil).
func (p *Provider) Exists(_ context.Context, remotePath string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.objects[remotePath]
	return ok, nil
}

// Delete removes the object. Idempotent.
func (p *Provider) Delete(_ context.Context, remotePath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, remotePath)
	return nil
}

// Healthy reports the (overridable) health state.
func (p *Provider) Healthy(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

// Usage sums stored object sizes. Capacity is unbounded.
func (p *Provider) Usage(_ context.Context) (types.UsageInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var used int64
	for _, obj := range p.objects {
		used += int64(len(obj.data))
	}
	return types.UsageInfo{
		UsedSpaceBytes: used,
		FileCount:      int64(len(p.objects)),
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// Verify Provider implements the provider interface.
var _ provider.Provider = (*Provider)(nil)
