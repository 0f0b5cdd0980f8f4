// Package provider defines the storage backend boundary for the sync
// pipeline.
//
// Every backend implements the same capability set; the orchestrator
// depends only on the Provider interface and obtains instances from a
// registry keyed by backend name, never from concrete types.
package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/planline/planlink/types"
)

// UploadOptions carries per-upload parameters.
type UploadOptions struct {
	// ContentType overrides the extension-derived content type.
	ContentType string
	// Metadata is attached to the stored object where the backend
	// supports it.
	Metadata map[string]string
}

// Provider is the capability set implemented identically by every
// storage backend.
//
// Contract invariants:
//   - Exists returns (false, nil) for a not-found condition, never an
//     error; errors are reserved for backend failures.
//   - Upload and Download report elapsed duration and size even on
//     failure where measurable.
//   - Delete is idempotent: deleting a non-existent object is not an
//     error.
type Provider interface {
	// Name returns the backend's registry name.
	Name() string

	// Upload transfers a local file to the backend.
	Upload(ctx context.Context, localPath, remotePath string, opts UploadOptions) types.ObjectResult

	// Download transfers a backend object to a local file.
	Download(ctx context.Context, remotePath, localPath string) types.ObjectResult

	// Exists reports whether the object is present.
	Exists(ctx context.Context, remotePath string) (bool, error)

	// Delete removes the object. Idempotent.
	Delete(ctx context.Context, remotePath string) error

	// Healthy reports backend reachability. Never returns an error.
	Healthy(ctx context.Context) bool

	// Usage computes an on-demand usage report.
	Usage(ctx context.Context) (types.UsageInfo, error)
}

// contentTypes is the fixed extension-to-content-type mapping.
var contentTypes = map[string]string{
	".json": "application/json",
	".gz":   "application/gzip",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".log":  "text/plain",
}

// DefaultContentType is used for unmapped extensions.
const DefaultContentType = "application/octet-stream"

// ContentTypeFor derives the content type from the file extension.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return DefaultContentType
}

// Factory constructs a provider instance.
type Factory func() (Provider, error)

// Registry maps backend names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a backend name to a factory, replacing any previous
// binding for that name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New constructs the named backend. Unknown names fail.
func (r *Registry) New(name string) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (registered: %s)", name, strings.Join(r.Names(), ", "))
	}
	return factory()
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
