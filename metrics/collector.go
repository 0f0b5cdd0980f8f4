// Package metrics provides in-process metrics collection.
//
// The Collector accumulates counters for transports, storage transfers
// and the sync pipeline. It is a leaf package with no internal
// dependencies. Best-effort side effects (the persist backup copy)
// report their failures here rather than failing the primary
// operation.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Transports
	RemoteRetries   int64
	ChannelFailures int64

	// Storage transfers
	UploadSuccess   int64
	UploadFailure   int64
	DownloadSuccess int64
	DownloadFailure int64

	// Sync pipeline
	SyncsCompleted    int64
	SyncsDenied       int64
	IntegrityFailures int64

	// Side-channel for fire-and-forget work
	BackupFailures int64

	// Dimensions (informational, set at construction)
	StorageBackend string
}

// Collector accumulates counters across the process lifetime.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver
// safe so optional instrumentation never forces nil checks on callers.
type Collector struct {
	mu sync.Mutex

	remoteRetries   int64
	channelFailures int64

	uploadSuccess   int64
	uploadFailure   int64
	downloadSuccess int64
	downloadFailure int64

	syncsCompleted    int64
	syncsDenied       int64
	integrityFailures int64

	backupFailures int64

	storageBackend string
}

// NewCollector creates a Collector labeled with the active storage
// backend name.
func NewCollector(storageBackend string) *Collector {
	return &Collector{storageBackend: storageBackend}
}

// IncRemoteRetry records a retried remote call.
func (c *Collector) IncRemoteRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteRetries++
}

// IncChannelFailure records a failed channel exchange.
func (c *Collector) IncChannelFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelFailures++
}

// IncUpload records an upload outcome.
func (c *Collector) IncUpload(success bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.uploadSuccess++
	} else {
		c.uploadFailure++
	}
}

// IncDownload records a download outcome.
func (c *Collector) IncDownload(success bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.downloadSuccess++
	} else {
		c.downloadFailure++
	}
}

// IncSyncCompleted records a completed sync request.
func (c *Collector) IncSyncCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncsCompleted++
}

// IncSyncDenied records a sync request declined by the user.
func (c *Collector) IncSyncDenied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncsDenied++
}

// IncIntegrityFailure records a post-transfer hash or etag mismatch.
func (c *Collector) IncIntegrityFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.integrityFailures++
}

// IncBackupFailure records a failed best-effort backup write.
func (c *Collector) IncBackupFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backupFailures++
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		RemoteRetries:     c.remoteRetries,
		ChannelFailures:   c.channelFailures,
		UploadSuccess:     c.uploadSuccess,
		UploadFailure:     c.uploadFailure,
		DownloadSuccess:   c.downloadSuccess,
		DownloadFailure:   c.downloadFailure,
		SyncsCompleted:    c.syncsCompleted,
		SyncsDenied:       c.syncsDenied,
		IntegrityFailures: c.integrityFailures,
		BackupFailures:    c.backupFailures,
		StorageBackend:    c.storageBackend,
	}
}
