package types

import "time"

// StoreResult is the outcome of a local persist or compress operation.
// Never mutated after creation; a new operation produces a new result.
type StoreResult struct {
	// Success reports whether the primary operation completed.
	Success bool `json:"success"`
	// CorrelationID ties the result to the originating operation.
	CorrelationID string `json:"correlationId"`
	// FilePath is the absolute path of the produced artifact.
	FilePath string `json:"filePath"`
	// ContentHash is the lowercase hex SHA-256 of the artifact bytes.
	ContentHash string `json:"contentHash"`
	// SizeBytes is the artifact size on disk.
	SizeBytes int64 `json:"sizeBytes"`
	// OriginalSizeBytes is the pre-compression size (compress only).
	OriginalSizeBytes int64 `json:"originalSizeBytes,omitempty"`
	// CompressionRatio is compressed/original. Values at or above 1.0
	// indicate incompressible input; reported, not an error.
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
	// Message is a human-readable outcome description.
	Message string `json:"message,omitempty"`
}

// ObjectResult is the outcome of a storage backend upload or download.
type ObjectResult struct {
	// Success reports whether the transfer completed.
	Success bool `json:"success"`
	// RemotePath is the object key within the backend.
	RemotePath string `json:"remotePath"`
	// ETag is the backend-assigned integrity token. Opaque: never
	// computed locally for downloads, only compared.
	ETag string `json:"etag,omitempty"`
	// SizeBytes is the transferred size, reported even on failure
	// where measurable.
	SizeBytes int64 `json:"sizeBytes"`
	// Duration is the elapsed transfer time.
	Duration time.Duration `json:"duration"`
	// Message is a human-readable outcome description.
	Message string `json:"message,omitempty"`
	// Metadata carries backend-specific key/value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SyncDirection identifies which way a sync moved data.
type SyncDirection string

const (
	// DirectionToRemote is a local-to-backend transfer.
	DirectionToRemote SyncDirection = "ToRemote"
	// DirectionFromRemote is a backend-to-local transfer.
	DirectionFromRemote SyncDirection = "FromRemote"
)

// SyncResult is the outcome of one file sync attempt. Bulk operations
// produce an ordered sequence of these, one per input file; batch
// success is not all-or-nothing.
type SyncResult struct {
	// Success reports whether this file's sync completed.
	Success bool `json:"success"`
	// CorrelationID ties the result to the originating sync call.
	CorrelationID string `json:"correlationId"`
	// LocalPath is the local file involved.
	LocalPath string `json:"localPath"`
	// RemotePath is the backend object key involved.
	RemotePath string `json:"remotePath,omitempty"`
	// Direction is ToRemote or FromRemote.
	Direction SyncDirection `json:"direction"`
	// SizeBytes is the transferred size.
	SizeBytes int64 `json:"sizeBytes"`
	// Duration is the elapsed end-to-end time.
	Duration time.Duration `json:"duration"`
	// Message is a human-readable outcome description.
	Message string `json:"message,omitempty"`
	// IntegrityVerified reports whether the post-transfer hash check passed.
	IntegrityVerified bool `json:"integrityVerified"`
}

// UsageInfo is an on-demand storage usage report. Recomputed per call,
// never cached beyond the call that produced it.
type UsageInfo struct {
	// TotalSpaceBytes is the backend capacity, 0 when unbounded.
	TotalSpaceBytes int64 `json:"totalSpaceBytes"`
	// UsedSpaceBytes is the space consumed by stored objects.
	UsedSpaceBytes int64 `json:"usedSpaceBytes"`
	// AvailableSpaceBytes is the remaining capacity, 0 when unbounded.
	AvailableSpaceBytes int64 `json:"availableSpaceBytes"`
	// FileCount is the number of stored objects.
	FileCount int64 `json:"fileCount"`
	// LastUpdated is when this report was computed.
	LastUpdated time.Time `json:"lastUpdated"`
}
