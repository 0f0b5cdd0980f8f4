package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("filesystem")

	c.IncRemoteRetry()
	c.IncRemoteRetry()
	c.IncUpload(true)
	c.IncUpload(false)
	c.IncDownload(true)
	c.IncSyncCompleted()
	c.IncSyncDenied()
	c.IncIntegrityFailure()
	c.IncBackupFailure()

	snap := c.Snapshot()
	if snap.RemoteRetries != 2 {
		t.Errorf("RemoteRetries = %d, want 2", snap.RemoteRetries)
	}
	if snap.UploadSuccess != 1 || snap.UploadFailure != 1 {
		t.Errorf("uploads = %d/%d, want 1/1", snap.UploadSuccess, snap.UploadFailure)
	}
	if snap.DownloadSuccess != 1 {
		t.Errorf("DownloadSuccess = %d, want 1", snap.DownloadSuccess)
	}
	if snap.SyncsCompleted != 1 || snap.SyncsDenied != 1 {
		t.Errorf("syncs = %d/%d, want 1/1", snap.SyncsCompleted, snap.SyncsDenied)
	}
	if snap.IntegrityFailures != 1 {
		t.Errorf("IntegrityFailures = %d, want 1", snap.IntegrityFailures)
	}
	if snap.BackupFailures != 1 {
		t.Errorf("BackupFailures = %d, want 1", snap.BackupFailures)
	}
	if snap.StorageBackend != "filesystem" {
		t.Errorf("StorageBackend = %q, want %q", snap.StorageBackend, "filesystem")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	// Must not panic.
	c.IncRemoteRetry()
	c.IncUpload(true)
	c.IncBackupFailure()
	if snap := c.Snapshot(); snap.RemoteRetries != 0 {
		t.Errorf("nil collector snapshot = %+v, want zero", snap)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("memory")
	var wg sync.WaitGroup
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := 0; m < 100; m++ {
				c.IncUpload(true)
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().UploadSuccess; got != 1000 {
		t.Errorf("UploadSuccess = %d, want 1000", got)
	}
}
