package syncd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/planline/planlink/consent"
	"github.com/planline/planlink/metrics"
	"github.com/planline/planlink/provider"
	"github.com/planline/planlink/provider/memprovider"
	"github.com/planline/planlink/types"
)

func newTestOrchestrator(t *testing.T, granted bool) (*Orchestrator, *memprovider.Provider, *metrics.Collector) {
	t.Helper()
	backend := memprovider.New()
	registry := provider.NewRegistry()
	registry.Register(memprovider.BackendName, func() (provider.Provider, error) {
		return backend, nil
	})
	mc := metrics.NewCollector(memprovider.BackendName)
	o := New(Config{}, registry, backend, &consent.Static{Granted: granted}, mc)
	return o, backend, mc
}

func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return p
}

func TestSyncToRemote(t *testing.T) {
	o, backend, mc := newTestOrchestrator(t, true)
	src := writeSource(t, "report.json", []byte(`{"plan":"A-100","rooms":42}`))

	result := o.SyncToRemote(context.Background(), src, Options{})
	if !result.Success {
		t.Fatalf("sync failed: %s", result.Message)
	}
	if !result.IntegrityVerified {
		t.Fatal("integrity not verified on success")
	}
	if result.Direction != types.DirectionToRemote {
		t.Fatalf("direction = %q", result.Direction)
	}
	if result.CorrelationID == "" {
		t.Fatal("missing correlation ID")
	}

	exists, err := backend.Exists(context.Background(), result.RemotePath)
	if err != nil || !exists {
		t.Fatalf("uploaded object not found at %q: %v", result.RemotePath, err)
	}

	// Source stays in place without DeleteLocal.
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source removed without DeleteLocal: %v", err)
	}

	snap := mc.Snapshot()
	if snap.UploadSuccess != 1 || snap.SyncsCompleted != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestSyncToRemoteNaming(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)
	src := writeSource(t, "model.json", []byte("{}"))

	result := o.SyncToRemote(context.Background(), src, Options{Category: "models"})
	if !result.Success {
		t.Fatalf("sync failed: %s", result.Message)
	}

	parts := strings.Split(result.RemotePath, "/")
	if len(parts) != 4 {
		t.Fatalf("remote path %q, want category/date/correlation/file", result.RemotePath)
	}
	if parts[0] != "models" {
		t.Fatalf("category = %q", parts[0])
	}
	if _, err := time.Parse("2006-01-02", parts[1]); err != nil {
		t.Fatalf("date segment %q: %v", parts[1], err)
	}
	if parts[2] != result.CorrelationID {
		t.Fatalf("correlation segment = %q, want %q", parts[2], result.CorrelationID)
	}
	if parts[3] != "model.json" {
		t.Fatalf("file segment = %q", parts[3])
	}
}

func TestSyncToRemoteCompressed(t *testing.T) {
	o, backend, _ := newTestOrchestrator(t, true)
	src := writeSource(t, "big.json", bytes.Repeat([]byte(`{"k":"v"},`), 4096))

	result := o.SyncToRemote(context.Background(), src, Options{Compress: true})
	if !result.Success {
		t.Fatalf("compressed sync failed: %s", result.Message)
	}
	if !strings.HasSuffix(result.RemotePath, "big.json.gz") {
		t.Fatalf("remote path %q, want .gz suffix", result.RemotePath)
	}
	exists, _ := backend.Exists(context.Background(), result.RemotePath)
	if !exists {
		t.Fatal("compressed object not uploaded")
	}

	// The compressed intermediate is removed after upload.
	if _, err := os.Stat(src + ".gz"); !os.IsNotExist(err) {
		t.Fatalf("compressed intermediate left behind: %v", err)
	}
	// The original stays.
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("source missing: %v", err)
	}
}

func TestSyncToRemoteDeleteLocal(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)
	src := writeSource(t, "done.json", []byte("{}"))

	result := o.SyncToRemote(context.Background(), src, Options{DeleteLocal: true})
	if !result.Success {
		t.Fatalf("sync failed: %s", result.Message)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source not removed after confirmed sync: %v", err)
	}
}

func TestSyncToRemoteDenied(t *testing.T) {
	o, _, mc := newTestOrchestrator(t, false)
	src := writeSource(t, "private.json", []byte("{}"))

	result := o.SyncToRemote(context.Background(), src, Options{DeleteLocal: true})
	if result.Success {
		t.Fatal("denied sync reported success")
	}
	if !strings.Contains(result.Message, "permission") {
		t.Fatalf("message = %q, want permission denial", result.Message)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("denied sync touched the source: %v", err)
	}
	if mc.Snapshot().SyncsDenied != 1 {
		t.Fatal("denial not counted")
	}
}

func TestSyncToRemoteUnhealthyBackend(t *testing.T) {
	o, backend, _ := newTestOrchestrator(t, true)
	backend.SetHealthy(false)
	src := writeSource(t, "stuck.json", []byte("{}"))

	result := o.SyncToRemote(context.Background(), src, Options{})
	if result.Success {
		t.Fatal("sync against unhealthy backend reported success")
	}
	if !strings.Contains(result.Message, "unhealthy") {
		t.Fatalf("message = %q", result.Message)
	}
}

func TestSyncToRemoteMissingSource(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)

	result := o.SyncToRemote(context.Background(), filepath.Join(t.TempDir(), "absent.json"), Options{})
	if result.Success {
		t.Fatal("sync of missing file reported success")
	}
}

func TestSyncFromRemote(t *testing.T) {
	o, _, mc := newTestOrchestrator(t, true)
	payload := []byte(`{"restored":true}`)
	src := writeSource(t, "up.json", payload)

	up := o.SyncToRemote(context.Background(), src, Options{})
	if !up.Success {
		t.Fatalf("seed upload failed: %s", up.Message)
	}

	dest := filepath.Join(t.TempDir(), "down.json")
	result := o.SyncFromRemote(context.Background(), up.RemotePath, dest)
	if !result.Success {
		t.Fatalf("download failed: %s", result.Message)
	}
	if result.Direction != types.DirectionFromRemote {
		t.Fatalf("direction = %q", result.Direction)
	}
	if !result.IntegrityVerified {
		t.Fatal("digest-style etag should be verified")
	}

	got, err := os.ReadFile(dest)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("restored content mismatch: %q, %v", got, err)
	}
	if mc.Snapshot().DownloadSuccess != 1 {
		t.Fatal("download not counted")
	}
}

func TestSyncFromRemoteMissingObject(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)

	dest := filepath.Join(t.TempDir(), "never.json")
	result := o.SyncFromRemote(context.Background(), "analysis/2026-08-29/nope/never.json", dest)
	if result.Success {
		t.Fatal("download of missing object reported success")
	}
	if !strings.Contains(result.Message, "does not exist") {
		t.Fatalf("message = %q", result.Message)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination created for missing object: %v", err)
	}
}

func TestBulkSyncOrderAndIsolation(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)

	dir := t.TempDir()
	paths := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, fmt.Sprintf("file-%d.json", i))
		if i != 3 {
			if err := os.WriteFile(p, []byte(fmt.Sprintf(`{"n":%d}`, i)), 0o644); err != nil {
				t.Fatalf("write input: %v", err)
			}
		}
		paths = append(paths, p)
	}

	results := o.BulkSyncToRemote(context.Background(), paths, Options{})
	if len(results) != len(paths) {
		t.Fatalf("got %d results for %d inputs", len(results), len(paths))
	}
	for i, r := range results {
		if r.LocalPath != paths[i] {
			t.Fatalf("result %d for %q, want %q", i, r.LocalPath, paths[i])
		}
		wantSuccess := i != 3
		if r.Success != wantSuccess {
			t.Fatalf("result %d success = %v, want %v (%s)", i, r.Success, wantSuccess, r.Message)
		}
	}
}

// boundedProvider wraps the memory backend and records the peak number
// of concurrent uploads.
type boundedProvider struct {
	*memprovider.Provider
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (b *boundedProvider) Upload(ctx context.Context, localPath, remotePath string, opts provider.UploadOptions) types.ObjectResult {
	cur := b.inFlight.Add(1)
	for {
		peak := b.peak.Load()
		if cur <= peak || b.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	defer b.inFlight.Add(-1)
	return b.Provider.Upload(ctx, localPath, remotePath, opts)
}

func TestBulkSyncConcurrencyBound(t *testing.T) {
	backend := &boundedProvider{Provider: memprovider.New()}
	registry := provider.NewRegistry()
	mc := metrics.NewCollector(memprovider.BackendName)
	o := New(Config{BulkConcurrency: 3}, registry, backend, &consent.Static{Granted: true}, mc)

	dir := t.TempDir()
	paths := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, fmt.Sprintf("f-%d.json", i))
		if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		paths = append(paths, p)
	}

	results := o.BulkSyncToRemote(context.Background(), paths, Options{})
	for i, r := range results {
		if !r.Success {
			t.Fatalf("result %d failed: %s", i, r.Message)
		}
	}
	if peak := backend.peak.Load(); peak > 3 {
		t.Fatalf("observed %d concurrent uploads, bound is 3", peak)
	}
}

func TestSwitchProvider(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)

	healthy := memprovider.New()
	unhealthy := memprovider.New()
	unhealthy.SetHealthy(false)
	o.registry.Register("standby", func() (provider.Provider, error) { return healthy, nil })
	o.registry.Register("broken", func() (provider.Provider, error) { return unhealthy, nil })

	if err := o.SwitchProvider(context.Background(), "broken"); err == nil {
		t.Fatal("switch to unhealthy backend succeeded")
	} else if !types.IsKind(err, types.KindProviderUnhealthy) {
		t.Fatalf("error kind: %v", err)
	}
	if o.ActiveProvider() != memprovider.BackendName {
		t.Fatalf("active backend changed after failed switch: %s", o.ActiveProvider())
	}

	if err := o.SwitchProvider(context.Background(), "standby"); err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if err := o.SwitchProvider(context.Background(), "no-such"); err == nil {
		t.Fatal("switch to unknown backend succeeded")
	}
}

func TestSwitchProviderSerialized(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)
	alt := memprovider.New()
	o.registry.Register("alt", func() (provider.Provider, error) { return alt, nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := memprovider.BackendName
			if i%2 == 0 {
				name = "alt"
			}
			_ = o.SwitchProvider(context.Background(), name)
			_ = o.ActiveProvider()
		}(i)
	}
	wg.Wait()
}

func TestUsage(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, true)
	src := writeSource(t, "u.json", []byte(`{"x":1}`))
	if r := o.SyncToRemote(context.Background(), src, Options{}); !r.Success {
		t.Fatalf("seed sync failed: %s", r.Message)
	}

	usage, err := o.Usage(context.Background())
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.FileCount != 1 || usage.UsedSpaceBytes == 0 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}
