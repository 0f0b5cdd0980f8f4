package s3provider

import (
	"path"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"bucket only", Config{Bucket: "plan-archive"}, false},
		{"full", Config{Bucket: "plan-archive", Prefix: "prod", Region: "eu-central-1", Endpoint: "https://minio.local:9000", UsePathStyle: true}, false},
		{"missing bucket", Config{Region: "eu-central-1"}, true},
		{"empty", Config{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestObjectKeyPrefix(t *testing.T) {
	p := &Provider{config: Config{Bucket: "b", Prefix: "plans/prod"}}
	got := p.objectKey("analysis/2026-08-29/report.json.gz")
	want := path.Join("plans/prod", "analysis/2026-08-29/report.json.gz")
	if got != want {
		t.Fatalf("objectKey = %q, want %q", got, want)
	}

	bare := &Provider{config: Config{Bucket: "b"}}
	if got := bare.objectKey("report.json"); got != "report.json" {
		t.Fatalf("objectKey without prefix = %q, want %q", got, "report.json")
	}
}
