// Package fsprovider implements the storage provider contract on a
// local directory tree. Object keys map to relative paths under the
// configured root.
package fsprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/types"
)

// BackendName is the registry name of this backend.
const BackendName = "filesystem"

// Provider stores objects as files under a root directory.
type Provider struct {
	root string
}

// New creates a filesystem backend rooted at the given directory,
// creating it as needed.
func New(root string) (*Provider, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem backend requires a root directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backend root: %w", err)
	}
	return &Provider{root: root}, nil
}

// Name returns the registry name.
func (p *Provider) Name() string { return BackendName }

// objectPath maps a remote key to a path under the root, rejecting
// keys that would escape it.
func (p *Provider) objectPath(remotePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(remotePath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", remotePath)
	}
	return filepath.Join(p.root, clean), nil
}

// Upload copies the local file under the root, hashing while copying.
// The etag is the hex SHA-256 of the stored content.
func (p *Provider) Upload(ctx context.Context, localPath, remotePath string, opts provider.UploadOptions) types.ObjectResult {
	start := time.Now()
	fail := func(size int64, err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			SizeBytes:  size,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(0, err)
	}
	dest, err := p.objectPath(remotePath)
	if err != nil {
		return fail(0, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(0, fmt.Errorf("create object directory: %w", err))
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fail(0, fmt.Errorf("open source: %w", err))
	}
	defer iox.DiscardClose(src)

	info, err := src.Stat()
	if err != nil {
		return fail(0, fmt.Errorf("stat source: %w", err))
	}
	size := info.Size()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fail(size, fmt.Errorf("create temp object: %w", err))
	}
	tmpPath := tmp.Name()
	discard := func() {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		discard()
		return fail(size, fmt.Errorf("copy object: %w", err))
	}
	if err := ctx.Err(); err != nil {
		discard()
		return fail(size, err)
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("close object: %w", err))
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("commit object: %w", err))
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:  size,
		Duration:   time.Since(start),
		Message:    "stored",
		Metadata:   map[string]string{"contentType": contentTypeOrDefault(localPath, opts)},
	}
}

func contentTypeOrDefault(localPath string, opts provider.UploadOptions) string {
	if opts.ContentType != "" {
		return opts.ContentType
	}
	return provider.ContentTypeFor(localPath)
}

// Download copies the stored object to localPath via temp-and-rename.
func (p *Provider) Download(ctx context.Context, remotePath, localPath string) types.ObjectResult {
	start := time.Now()
	fail := func(size int64, err error) types.ObjectResult {
		return types.ObjectResult{
			RemotePath: remotePath,
			SizeBytes:  size,
			Duration:   time.Since(start),
			Message:    err.Error(),
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(0, err)
	}
	objPath, err := p.objectPath(remotePath)
	if err != nil {
		return fail(0, err)
	}

	src, err := os.Open(objPath)
	if err != nil {
		return fail(0, fmt.Errorf("object not found: %s", remotePath))
	}
	defer iox.DiscardClose(src)

	info, err := src.Stat()
	if err != nil {
		return fail(0, fmt.Errorf("stat object: %w", err))
	}
	size := info.Size()

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-*")
	if err != nil {
		return fail(size, fmt.Errorf("create temp output: %w", err))
	}
	tmpPath := tmp.Name()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), src); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("copy object: %w", err))
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("close output: %w", err))
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(size, fmt.Errorf("commit output: %w", err))
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:  size,
		Duration:   time.Since(start),
		Message:    "downloaded",
	}
}

// Exists reports object presence. Not-found is (false, nil).
func (p *Provider) Exists(_ context.Context, remotePath string) (bool, error) {
	objPath, err := p.objectPath(remotePath)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(objPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Delete removes the object. Idempotent: a missing object is not an
// error.
func (p *Provider) Delete(_ context.Context, remotePath string) error {
	objPath, err := p.objectPath(remotePath)
	if err != nil {
		return err
	}
	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Healthy reports whether the root directory is present and writable.
func (p *Provider) Healthy(_ context.Context) bool {
	probe, err := os.CreateTemp(p.root, ".health-*")
	if err != nil {
		return false
	}
	path := probe.Name()
	iox.DiscardClose(probe)
	iox.RemoveBestEffort(path)
	return true
}

// Usage walks the root and sums object sizes.
func (p *Provider) Usage(ctx context.Context) (types.UsageInfo, error) {
	var used, count int64
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		used += info.Size()
		count++
		return nil
	})
	if err != nil {
		return types.UsageInfo{}, fmt.Errorf("walk backend root: %w", err)
	}
	return types.UsageInfo{
		UsedSpaceBytes: used,
		FileCount:      count,
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// Verify Provider implements the provider interface.
var _ provider.Provider = (*Provider)(nil)
