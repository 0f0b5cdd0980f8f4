package memprovider

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/planline/planlink/provider"
)

func writeLocal(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	return path
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	p := New()
	ctx := context.Background()
	content := []byte(`{"project":"tower-b"}`)
	local := writeLocal(t, content)

	up := p.Upload(ctx, local, "projects/plan.json", provider.UploadOptions{})
	if !up.Success {
		t.Fatalf("Upload failed: %s", up.Message)
	}

	dest := filepath.Join(t.TempDir(), "restored.json")
	down := p.Download(ctx, "projects/plan.json", dest)
	if !down.Success {
		t.Fatalf("Download failed: %s", down.Message)
	}
	if down.ETag != up.ETag {
		t.Errorf("download etag = %q, want %q", down.ETag, up.ETag)
	}

	restored, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Error("round-tripped content differs")
	}
}

func TestExistsDeleteUsage(t *testing.T) {
	p := New()
	ctx := context.Background()

	ok, err := p.Exists(ctx, "absent")
	if err != nil || ok {
		t.Errorf("Exists(absent) = (%v, %v), want (false, nil)", ok, err)
	}

	local := writeLocal(t, bytes.Repeat([]byte("x"), 42))
	if up := p.Upload(ctx, local, "k", provider.UploadOptions{}); !up.Success {
		t.Fatalf("Upload failed: %s", up.Message)
	}

	ok, err = p.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists(k) = (%v, %v), want (true, nil)", ok, err)
	}

	usage, err := p.Usage(ctx)
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage.FileCount != 1 || usage.UsedSpaceBytes != 42 {
		t.Errorf("usage = %d files / %d bytes, want 1/42", usage.FileCount, usage.UsedSpaceBytes)
	}

	if err := p.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := p.Delete(ctx, "k"); err != nil {
		t.Errorf("repeated Delete failed: %v", err)
	}
}

func TestSetHealthy(t *testing.T) {
	p := New()
	if !p.Healthy(context.Background()) {
		t.Error("fresh backend unhealthy")
	}
	p.SetHealthy(false)
	if p.Healthy(context.Background()) {
		t.Error("SetHealthy(false) not observed")
	}
}
