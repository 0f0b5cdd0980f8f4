// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"io"
	"os"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(provider))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are
// unactionable:
//
//	defer iox.DiscardErr(gz.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// RemoveBestEffort deletes path and discards the error. Used to drop
// partially-written temp files on a failed or cancelled operation,
// where the original error is the one worth reporting.
func RemoveBestEffort(path string) { _ = os.Remove(path) }
