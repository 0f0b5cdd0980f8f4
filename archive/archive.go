// Package archive implements the compression stage between the local
// data store and the storage providers.
//
// Compression streams through gzip and commits via temp-file rename,
// so a failed or cancelled run leaves no partial artifact under the
// final name. A compression ratio at or above 1.0 means the input was
// incompressible; that is reported in the result, never treated as an
// error.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
	"github.com/planline/planlink/types"
)

// Suffix is the extension appended to compressed artifacts.
const Suffix = ".gz"

// copyChunkSize bounds how much data moves between cancellation checks.
const copyChunkSize = 256 * 1024

// Compressor runs the compression stage.
type Compressor struct {
	logger *log.Logger
}

// New creates a compressor.
func New(logger *log.Logger) *Compressor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Compressor{logger: logger}
}

// Compress streams sourcePath through gzip into a sibling artifact
// and reports sizes and the compression ratio. The source is deleted
// only when deleteSource is set and the artifact was committed. All
// failures are captured into the result; errors never escape this
// boundary.
func (c *Compressor) Compress(ctx context.Context, sourcePath string, deleteSource bool, correlationID string) types.StoreResult {
	fail := func(msg string, err error) types.StoreResult {
		c.logger.WithCorrelation(correlationID).Error("compress failed", map[string]any{
			"source": sourcePath,
			"reason": msg,
			"error":  err.Error(),
		})
		return types.StoreResult{
			CorrelationID: correlationID,
			FilePath:      sourcePath,
			Message:       fmt.Sprintf("%s: %v", msg, err),
		}
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fail("open source", err)
	}
	defer iox.DiscardClose(src)

	srcInfo, err := src.Stat()
	if err != nil {
		return fail("stat source", err)
	}
	originalSize := srcInfo.Size()

	destPath := sourcePath + Suffix
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fail("create temp artifact", err)
	}
	tmpPath := tmp.Name()
	discard := func() {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
	}

	hasher := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(tmp, hasher))

	if err := copyCtx(ctx, gz, src); err != nil {
		discard()
		return fail("compress stream", err)
	}
	if err := gz.Close(); err != nil {
		discard()
		return fail("finalize gzip stream", err)
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail("close temp artifact", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fail("commit artifact", err)
	}

	destInfo, err := os.Stat(destPath)
	if err != nil {
		return fail("stat artifact", err)
	}
	compressedSize := destInfo.Size()

	ratio := 0.0
	if originalSize > 0 {
		ratio = float64(compressedSize) / float64(originalSize)
	}

	if deleteSource {
		if err := os.Remove(sourcePath); err != nil {
			c.logger.WithCorrelation(correlationID).Warn("could not delete compressed source", map[string]any{
				"source": sourcePath,
				"error":  err.Error(),
			})
		}
	}

	message := "compressed"
	if ratio >= 1.0 && originalSize > 0 {
		message = fmt.Sprintf("compressed (incompressible input, ratio %.2f)", ratio)
	}

	return types.StoreResult{
		Success:           true,
		CorrelationID:     correlationID,
		FilePath:          destPath,
		ContentHash:       hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:         compressedSize,
		OriginalSizeBytes: originalSize,
		CompressionRatio:  ratio,
		Message:           message,
	}
}

// Decompress streams the gzip artifact at path into destPath. An
// unterminated or malformed stream fails with a CorruptArchive error,
// never a silent empty result; no partial destination survives.
func (c *Compressor) Decompress(ctx context.Context, path, destPath string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer iox.DiscardClose(src)

	gz, err := gzip.NewReader(src)
	if err != nil {
		return types.WrapError(types.KindCorruptArchive, "invalid gzip header", err)
	}
	defer iox.DiscardClose(gz)

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()

	if err := copyCtx(ctx, tmp, gz); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		// io errors from the gzip reader indicate a corrupt or
		// truncated stream.
		if ctx.Err() != nil {
			return err
		}
		return types.WrapError(types.KindCorruptArchive, "corrupt gzip stream", err)
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		iox.RemoveBestEffort(tmpPath)
		return fmt.Errorf("commit output: %w", err)
	}
	return nil
}

// DecodeJSON decompresses the artifact at path and decodes the inner
// JSON into v. The structural inverse of compressing a persisted
// payload.
func (c *Compressor) DecodeJSON(ctx context.Context, path string, v any) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer iox.DiscardClose(src)

	gz, err := gzip.NewReader(src)
	if err != nil {
		return types.WrapError(types.KindCorruptArchive, "invalid gzip header", err)
	}
	defer iox.DiscardClose(gz)

	data, err := readAllCtx(ctx, gz)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return types.WrapError(types.KindCorruptArchive, "corrupt gzip stream", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.WrapError(types.KindCorruptArchive, "archive payload is not valid JSON", err)
	}
	return nil
}

// copyCtx copies src to dst in bounded chunks, honoring cancellation
// between chunks.
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readAllCtx reads src to completion in bounded chunks, honoring
// cancellation between chunks.
func readAllCtx(ctx context.Context, src io.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := src.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
