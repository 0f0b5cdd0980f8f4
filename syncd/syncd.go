// Package syncd orchestrates file synchronization between the local
// store and the active storage backend.
//
// Every top-level call walks the same stages: permission check, backend
// health check, optional compression, transfer, integrity verification,
// optional local cleanup. A failed stage short-circuits into a failed
// SyncResult; errors never escape the public surface.
package syncd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/planline/planlink/archive"
	"github.com/planline/planlink/consent"
	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/types"
)

const (
	// DefaultBulkConcurrency bounds parallel transfers in bulk syncs.
	DefaultBulkConcurrency = 3
	// DefaultCategory groups remote objects when none is given.
	DefaultCategory = "analysis"
	// correlationPrefix tags sync-originated correlation IDs.
	correlationPrefix = "SYN"
)

// Options controls a single sync-to-remote call.
type Options struct {
	// Compress gzips the source before upload.
	Compress bool
	// DeleteLocal removes the source file after a confirmed success.
	DeleteLocal bool
	// Category is the top-level remote grouping. Empty means
	// DefaultCategory.
	Category string
	// CorrelationID ties the sync to an existing operation. Empty
	// generates a fresh one.
	CorrelationID string
}

// Config holds orchestrator configuration.
type Config struct {
	// BulkConcurrency bounds parallel transfers. Zero or negative
	// means DefaultBulkConcurrency.
	BulkConcurrency int
}

// Orchestrator drives sync operations against the active backend.
// Provider switches are serialized; in-flight transfers keep the
// provider reference captured at start.
type Orchestrator struct {
	registry   *provider.Registry
	consent    consent.Collector
	compressor *archive.Compressor
	collector  *metrics.Collector
	logger     *log.Logger

	bulkLimit int64
	now       func() time.Time

	mu     sync.Mutex
	active provider.Provider
}

// New creates an orchestrator with the given backend active.
func New(cfg Config, registry *provider.Registry, active provider.Provider, collector consent.Collector, mc *metrics.Collector) *Orchestrator {
	limit := cfg.BulkConcurrency
	if limit <= 0 {
		limit = DefaultBulkConcurrency
	}
	logger := log.NewLogger("syncd")
	return &Orchestrator{
		registry:   registry,
		consent:    collector,
		compressor: archive.New(logger),
		collector:  mc,
		logger:     logger,
		bulkLimit:  int64(limit),
		now:        time.Now,
		active:     active,
	}
}

// ActiveProvider returns the name of the currently active backend.
func (o *Orchestrator) ActiveProvider() string {
	return o.current().Name()
}

// current captures the active provider under the switch mutex.
func (o *Orchestrator) current() provider.Provider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// SwitchProvider activates the named backend. The candidate must pass
// a health check before the switch; an unhealthy candidate leaves the
// active backend unchanged.
func (o *Orchestrator) SwitchProvider(ctx context.Context, name string) error {
	candidate, err := o.registry.New(name)
	if err != nil {
		return err
	}
	if !candidate.Healthy(ctx) {
		return types.NewError(types.KindProviderUnhealthy, fmt.Sprintf("backend %q failed health check", name))
	}

	o.mu.Lock()
	previous := o.active.Name()
	o.active = candidate
	o.mu.Unlock()

	o.logger.Info("storage backend switched", map[string]any{
		"from": previous,
		"to":   name,
	})
	return nil
}

// SyncToRemote uploads a local file to the active backend. Permission
// validity is re-checked on every call; a denial is a normal failed
// result, not an error.
func (o *Orchestrator) SyncToRemote(ctx context.Context, localPath string, opts Options) types.SyncResult {
	start := o.now()
	correlationID := opts.CorrelationID
	if correlationID == "" {
		generated, err := types.NewCorrelationID(correlationPrefix)
		if err == nil {
			correlationID = generated
		}
	}
	logger := o.logger.WithCorrelation(correlationID)

	fail := func(message string) types.SyncResult {
		logger.Warn("sync to remote failed", map[string]any{
			"localPath": localPath,
			"reason":    message,
		})
		return types.SyncResult{
			CorrelationID: correlationID,
			LocalPath:     localPath,
			Direction:     types.DirectionToRemote,
			Duration:      time.Since(start),
			Message:       message,
		}
	}

	if !o.consent.RequestPermission(ctx) {
		o.collector.IncSyncDenied()
		return fail("sync permission denied")
	}

	backend := o.current()
	if !backend.Healthy(ctx) {
		return fail(fmt.Sprintf("storage backend %q is unhealthy", backend.Name()))
	}

	uploadPath := localPath
	contentHash := ""
	cleanupIntermediate := false

	if opts.Compress {
		compressed := o.compressor.Compress(ctx, localPath, false, correlationID)
		if !compressed.Success {
			return fail(compressed.Message)
		}
		uploadPath = compressed.FilePath
		contentHash = compressed.ContentHash
		cleanupIntermediate = true
	} else {
		hash, err := hashFile(localPath)
		if err != nil {
			return fail(fmt.Sprintf("hash source: %v", err))
		}
		contentHash = hash
	}
	if cleanupIntermediate {
		defer iox.RemoveBestEffort(uploadPath)
	}

	remotePath := remoteName(categoryOf(opts), start, correlationID, uploadPath)

	upload := backend.Upload(ctx, uploadPath, remotePath, provider.UploadOptions{
		Metadata: map[string]string{
			"contentHash":   contentHash,
			"correlationId": correlationID,
		},
	})
	o.collector.IncUpload(upload.Success)
	if !upload.Success {
		return fail(upload.Message)
	}

	if !o.verifyIntegrity(uploadPath, contentHash, upload.ETag) {
		o.collector.IncIntegrityFailure()
		return fail("integrity verification failed after upload")
	}

	if opts.DeleteLocal {
		if err := os.Remove(localPath); err != nil {
			logger.Warn("failed to remove local source after sync", map[string]any{
				"localPath": localPath,
				"error":     err.Error(),
			})
		} else {
			logger.Info("local source removed after confirmed sync", map[string]any{
				"localPath": localPath,
			})
		}
	}

	o.collector.IncSyncCompleted()
	logger.Info("sync to remote completed", map[string]any{
		"localPath":  localPath,
		"remotePath": remotePath,
		"sizeBytes":  upload.SizeBytes,
		"backend":    backend.Name(),
	})

	return types.SyncResult{
		Success:           true,
		CorrelationID:     correlationID,
		LocalPath:         localPath,
		RemotePath:        remotePath,
		Direction:         types.DirectionToRemote,
		SizeBytes:         upload.SizeBytes,
		Duration:          time.Since(start),
		Message:           "synchronized",
		IntegrityVerified: true,
	}
}

// SyncFromRemote downloads a backend object to localPath, failing fast
// when the object does not exist.
func (o *Orchestrator) SyncFromRemote(ctx context.Context, remotePath, localPath string) types.SyncResult {
	start := o.now()
	correlationID, _ := types.NewCorrelationID(correlationPrefix)

	fail := func(message string) types.SyncResult {
		o.logger.WithCorrelation(correlationID).Warn("sync from remote failed", map[string]any{
			"remotePath": remotePath,
			"reason":     message,
		})
		return types.SyncResult{
			CorrelationID: correlationID,
			LocalPath:     localPath,
			RemotePath:    remotePath,
			Direction:     types.DirectionFromRemote,
			Duration:      time.Since(start),
			Message:       message,
		}
	}

	backend := o.current()
	if !backend.Healthy(ctx) {
		return fail(fmt.Sprintf("storage backend %q is unhealthy", backend.Name()))
	}

	exists, err := backend.Exists(ctx, remotePath)
	if err != nil {
		return fail(fmt.Sprintf("existence check: %v", err))
	}
	if !exists {
		return fail(fmt.Sprintf("remote object %q does not exist", remotePath))
	}

	download := backend.Download(ctx, remotePath, localPath)
	o.collector.IncDownload(download.Success)
	if !download.Success {
		return fail(download.Message)
	}

	verified := false
	if isHexDigest(download.ETag) {
		verified = o.verifyIntegrity(localPath, download.ETag, "")
		if !verified {
			o.collector.IncIntegrityFailure()
			return fail("integrity verification failed after download")
		}
	}

	return types.SyncResult{
		Success:           true,
		CorrelationID:     correlationID,
		LocalPath:         localPath,
		RemotePath:        remotePath,
		Direction:         types.DirectionFromRemote,
		SizeBytes:         download.SizeBytes,
		Duration:          time.Since(start),
		Message:           "synchronized",
		IntegrityVerified: verified,
	}
}

// BulkSyncToRemote syncs every path with bounded concurrency. The
// result slice matches the input order, one entry per path; a failed
// path never aborts the rest of the batch.
func (o *Orchestrator) BulkSyncToRemote(ctx context.Context, paths []string, opts Options) []types.SyncResult {
	results := make([]types.SyncResult, len(paths))
	sem := semaphore.NewWeighted(o.bulkLimit)

	var wg sync.WaitGroup
	for i, localPath := range paths {
		wg.Add(1)
		go func(i int, localPath string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = types.SyncResult{
					LocalPath: localPath,
					Direction: types.DirectionToRemote,
					Message:   fmt.Sprintf("cancelled before transfer: %v", err),
				}
				return
			}
			defer sem.Release(1)
			results[i] = o.SyncToRemote(ctx, localPath, opts)
		}(i, localPath)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	o.logger.Info("bulk sync completed", map[string]any{
		"total":     len(paths),
		"succeeded": succeeded,
		"failed":    len(paths) - succeeded,
	})
	return results
}

// Usage returns the active backend's usage report.
func (o *Orchestrator) Usage(ctx context.Context) (types.UsageInfo, error) {
	return o.current().Usage(ctx)
}

// verifyIntegrity re-hashes the local artifact and compares it to the
// recorded hash, plus the backend etag when it looks like a digest.
func (o *Orchestrator) verifyIntegrity(localPath, expectedHash, etag string) bool {
	actual, err := hashFile(localPath)
	if err != nil {
		o.logger.Warn("integrity re-hash failed", map[string]any{
			"path":  localPath,
			"error": err.Error(),
		})
		return false
	}
	if expectedHash != "" && !strings.EqualFold(actual, expectedHash) {
		return false
	}
	if isHexDigest(etag) && !strings.EqualFold(actual, etag) {
		return false
	}
	return true
}

// remoteName builds the backend object key:
// category/yyyy-MM-dd/correlationID/filename.
func remoteName(category string, at time.Time, correlationID, localPath string) string {
	return path.Join(category, at.UTC().Format("2006-01-02"), correlationID, filepath.Base(localPath))
}

func categoryOf(opts Options) string {
	if opts.Category != "" {
		return opts.Category
	}
	return DefaultCategory
}

// hashFile computes the lowercase hex SHA-256 of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer iox.DiscardClose(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isHexDigest reports whether s looks like a hex SHA-256, the etag
// shape produced by digest-based backends. Multipart S3 etags and
// other opaque tokens do not qualify and are skipped, not compared.
func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
