// Package redisprovider implements the storage provider contract on
// Redis. Intended for small artifacts (session payloads, analysis
// snapshots) where round-trip latency matters more than capacity;
// object bytes live in a string key and descriptive fields in a
// companion hash.
package redisprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/types"
)

// BackendName is the registry name of this backend.
const BackendName = "redis"

// DefaultPrefix namespaces all keys written by this backend.
const DefaultPrefix = "planlink"

// DefaultTimeout bounds individual Redis commands.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis backend.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix namespaces keys (default: planlink).
	Prefix string
	// Timeout is the per-command timeout (default 5s).
	Timeout time.Duration
}

// Provider stores objects in Redis keys.
type Provider struct {
	config Config
	client *goredis.Client
}

// New creates a Redis backend from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis backend requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis backend: invalid URL: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provider{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Name returns the registry name.
func (p *Provider) Name() string { return BackendName }

// Close releases the underlying client.
func (p *Provider) Close() error { return p.client.Close() }

func (p *Provider) dataKey(remotePath string) string {
	return fmt.Sprintf("%s:obj:%s", p.config.Prefix, remotePath)
}

func (p *Provider) metaKey(remotePath string) string {
	return fmt.Sprintf("%s:meta:%s", p.config.Prefix, remotePath)
}

// Upload stores the local file's bytes and a metadata hash.
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

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fail(0, fmt.Errorf("read source: %w", err))
	}
	digest := sha256.Sum256(data)
	etag := hex.EncodeToString(digest[:])

	contentType := opts.ContentType
	if contentType == "" {
		contentType = provider.ContentTypeFor(localPath)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	pipe := p.client.TxPipeline()
	pipe.Set(cmdCtx, p.dataKey(remotePath), data, 0)
	meta := map[string]any{
		"etag":        etag,
		"size":        int64(len(data)),
		"contentType": contentType,
		"storedAt":    time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range opts.Metadata {
		meta["x-"+key] = value
	}
	pipe.HSet(cmdCtx, p.metaKey(remotePath), meta)
	if _, err := pipe.Exec(cmdCtx); err != nil {
		return fail(int64(len(data)), fmt.Errorf("redis write: %w", err))
	}

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

// Download writes the stored bytes to localPath via temp-and-rename.
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

	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	data, err := p.client.Get(cmdCtx, p.dataKey(remotePath)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return fail(0, fmt.Errorf("object not found: %s", remotePath))
		}
		return fail(0, fmt.Errorf("redis read: %w", err))
	}
	etag, err := p.client.HGet(cmdCtx, p.metaKey(remotePath), "etag").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fail(int64(len(data)), fmt.Errorf("redis meta read: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-*")
	if err != nil {
		return fail(int64(len(data)), fmt.Errorf("create temp output: %w", err))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		return fail(int64(len(data)), fmt.Errorf("write output: %w", err))
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(int64(len(data)), fmt.Errorf("close output: %w", err))
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail(int64(len(data)), fmt.Errorf("commit output: %w", err))
	}

	return types.ObjectResult{
		Success:    true,
		RemotePath: remotePath,
		ETag:       etag,
		SizeBytes:  int64(len(data)),
		Duration:   time.Since(start),
		Message:    "downloaded",
	}
}

// Exists reports object presence. Not-found is (false, nil).
func (p *Provider) Exists(ctx context.Context, remotePath string) (bool, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	n, err := p.client.Exists(cmdCtx, p.dataKey(remotePath)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Delete removes the object and its metadata. Idempotent.
func (p *Provider) Delete(ctx context.Context, remotePath string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if err := p.client.Del(cmdCtx, p.dataKey(remotePath), p.metaKey(remotePath)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Healthy reports reachability via PING. Never returns an error.
func (p *Provider) Healthy(ctx context.Context) bool {
	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	return p.client.Ping(cmdCtx).Err() == nil
}

// Usage scans metadata hashes and sums recorded sizes.
func (p *Provider) Usage(ctx context.Context) (types.UsageInfo, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var used, count int64
	iter := p.client.Scan(cmdCtx, 0, p.config.Prefix+":meta:*", 100).Iterator()
	for iter.Next(cmdCtx) {
		sizeField, err := p.client.HGet(cmdCtx, iter.Val(), "size").Result()
		if err != nil {
			continue
		}
		size, err := strconv.ParseInt(sizeField, 10, 64)
		if err != nil {
			continue
		}
		used += size
		count++
	}
	if err := iter.Err(); err != nil {
		return types.UsageInfo{}, fmt.Errorf("redis scan: %w", err)
	}

	return types.UsageInfo{
		UsedSpaceBytes: used,
		FileCount:      count,
		LastUpdated:    time.Now().UTC(),
	}, nil
}

// Verify Provider implements the provider interface.
var _ provider.Provider = (*Provider)(nil)
