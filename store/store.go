// Package store implements the local data store: durable persists with
// content hashing, best-effort backup copies, integrity verification
// and age-based cleanup.
//
// Every artifact is written alongside a compact msgpack meta sidecar
// carrying the content hash and creation instant, so listing and
// cleanup never re-hash payloads. All writes go to a temporary path
// and are renamed into place, so a cancelled or failed persist leaves
// no partially-written file visible under its final name.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/types"
)

// MetaSuffix is the sidecar extension appended to an artifact path.
const MetaSuffix = ".meta"

// fileTimestampLayout names artifacts by creation instant; the
// correlation fragment makes concurrent persists collision-free.
const fileTimestampLayout = "20060102T150405.000000000"

// Meta is the msgpack sidecar written next to every artifact.
type Meta struct {
	// ContentHash is the lowercase hex SHA-256 of the artifact bytes.
	ContentHash string `msgpack:"contentHash"`
	// CorrelationID ties the artifact to the operation that produced it.
	CorrelationID string `msgpack:"correlationId"`
	// SizeBytes is the artifact size.
	SizeBytes int64 `msgpack:"sizeBytes"`
	// CreatedAt is the persist instant (UTC).
	CreatedAt time.Time `msgpack:"createdAt"`
}

// Entry is one stored artifact with its sidecar metadata.
type Entry struct {
	Path string
	Meta Meta
}

// Config configures the local data store.
type Config struct {
	// DataDir is the primary artifact directory (required).
	DataDir string
	// BackupDir receives best-effort backup copies. Empty disables
	// backups.
	BackupDir string
}

// Store persists structured payloads to disk.
type Store struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector

	backups sync.WaitGroup
}

// New creates a local data store, creating the data and backup
// directories as needed.
func New(cfg Config, logger *log.Logger, collector *metrics.Collector) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("store requires a data directory")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if cfg.BackupDir != "" {
		if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup directory: %w", err)
		}
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Store{config: cfg, logger: logger, collector: collector}, nil
}

// Persist serializes payload as JSON, hashes the serialized bytes, and
// writes them under a unique name together with a meta sidecar. A
// best-effort backup copy is written asynchronously; its failure is
// logged and counted but never fails the persist. All failures are
// captured into the result; errors never escape this boundary.
func (s *Store) Persist(ctx context.Context, correlationID string, payload any) types.StoreResult {
	fail := func(msg string, err error) types.StoreResult {
		s.logger.WithCorrelation(correlationID).Error("persist failed", map[string]any{
			"reason": msg,
			"error":  err.Error(),
		})
		return types.StoreResult{
			CorrelationID: correlationID,
			Message:       fmt.Sprintf("%s: %v", msg, err),
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("persist cancelled", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fail("serialize payload", err)
	}

	digest := sha256.Sum256(data)
	contentHash := hex.EncodeToString(digest[:])

	name := fmt.Sprintf("%s_%s.json", time.Now().UTC().Format(fileTimestampLayout), correlationFragment(correlationID))
	path := filepath.Join(s.config.DataDir, name)

	if err := commitFile(path, data); err != nil {
		return fail("write artifact", err)
	}

	meta := Meta{
		ContentHash:   contentHash,
		CorrelationID: correlationID,
		SizeBytes:     int64(len(data)),
		CreatedAt:     time.Now().UTC(),
	}
	if err := writeMeta(path, meta); err != nil {
		iox.RemoveBestEffort(path)
		return fail("write meta sidecar", err)
	}

	s.backupAsync(path, data, correlationID)

	return types.StoreResult{
		Success:       true,
		CorrelationID: correlationID,
		FilePath:      path,
		ContentHash:   contentHash,
		SizeBytes:     int64(len(data)),
		Message:       "persisted",
	}
}

// backupAsync copies the artifact into the backup directory without
// blocking the caller. Failures go to the log and the metrics side
// channel only.
func (s *Store) backupAsync(path string, data []byte, correlationID string) {
	if s.config.BackupDir == "" {
		return
	}
	backupPath := filepath.Join(s.config.BackupDir, filepath.Base(path))

	s.backups.Add(1)
	go func() {
		defer s.backups.Done()
		if err := commitFile(backupPath, data); err != nil {
			s.collector.IncBackupFailure()
			s.logger.WithCorrelation(correlationID).Warn("backup copy failed", map[string]any{
				"path":  backupPath,
				"error": err.Error(),
			})
		}
	}()
}

// WaitBackups blocks until all in-flight backup copies have settled.
// The persist critical path never calls this; tests and shutdown do.
func (s *Store) WaitBackups() {
	s.backups.Wait()
}

// VerifyIntegrity recomputes the hash of the stored artifact and
// compares it case-insensitively against expectedHash. Returns false,
// never an error, on any mismatch or read failure.
func (s *Store) VerifyIntegrity(path, expectedHash string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer iox.DiscardClose(f)

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(actual, expectedHash)
}

// ListAll scans the data directory and returns every artifact with a
// readable meta sidecar, ordered by creation time.
func (s *Store) ListAll() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("scan data directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), MetaSuffix) {
			continue
		}
		path := filepath.Join(s.config.DataDir, de.Name())
		meta, err := readMeta(path)
		if err != nil {
			s.logger.Warn("skipping artifact without readable sidecar", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		entries = append(entries, Entry{Path: path, Meta: meta})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Meta.CreatedAt.Before(entries[j].Meta.CreatedAt)
	})
	return entries, nil
}

// CleanupOlderThan irreversibly deletes artifacts whose creation time
// is older than age, together with their sidecars. Each deletion is
// logged with the artifact's original creation timestamp. Returns the
// number of artifacts removed.
func (s *Store) CleanupOlderThan(age time.Duration) (int, error) {
	entries, err := s.ListAll()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-age)

	removed := 0
	for _, entry := range entries {
		if !entry.Meta.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(entry.Path); err != nil {
			s.logger.Warn("cleanup could not remove artifact", map[string]any{
				"path":  entry.Path,
				"error": err.Error(),
			})
			continue
		}
		iox.RemoveBestEffort(entry.Path + MetaSuffix)
		removed++
		s.logger.Info("removed expired artifact", map[string]any{
			"path":      entry.Path,
			"createdAt": entry.Meta.CreatedAt.Format(time.RFC3339),
		})
	}
	return removed, nil
}

// correlationFragment returns the trailing hash fragment of a
// correlation id, or the id itself when it has no underscore segments.
func correlationFragment(correlationID string) string {
	if idx := strings.LastIndex(correlationID, "_"); idx >= 0 && idx+1 < len(correlationID) {
		frag := correlationID[idx+1:]
		if len(frag) > 12 {
			frag = frag[:12]
		}
		return frag
	}
	if correlationID == "" {
		return "anonymous"
	}
	return correlationID
}

// commitFile writes data to a temporary sibling and renames it into
// place, so readers never observe a partial file under the final name.
func commitFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return err
	}
	return nil
}

// writeMeta encodes the sidecar as msgpack next to the artifact.
func writeMeta(artifactPath string, meta Meta) error {
	data, err := msgpack.Marshal(meta)
	if err != nil {
		return err
	}
	return commitFile(artifactPath+MetaSuffix, data)
}

// readMeta decodes the sidecar for the given artifact.
func readMeta(artifactPath string) (Meta, error) {
	data, err := os.ReadFile(artifactPath + MetaSuffix)
	if err != nil {
		return Meta{}, err
	}
	var meta Meta
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}
