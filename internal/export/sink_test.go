package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirSink_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := NewDirSink(dir)
	body := `{"connection":{"type":"single_plate"}}`

	loc, err := sink.Put(context.Background(), "Grid_B2_tekla_export.json", strings.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := filepath.Join(dir, "Grid_B2_tekla_export.json"); loc != want {
		t.Errorf("location = %s, want %s", loc, want)
	}
	got, err := os.ReadFile(loc)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != body {
		t.Errorf("file = %s, want %s", got, body)
	}
}

func TestDirSink_RejectsPaths(t *testing.T) {
	sink := NewDirSink(t.TempDir())
	for _, name := range []string{"", "..", "../escape.json", "nested/file.json"} {
		if _, err := sink.Put(context.Background(), name, strings.NewReader("{}"), 2); err == nil {
			t.Errorf("Put(%q) expected error", name)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default dir", cfg: Config{}},
		{name: "dir", cfg: Config{Sink: "dir", Dir: t.TempDir()}},
		{name: "minio without endpoint", cfg: Config{Sink: "minio"}, wantErr: true},
		{name: "minio", cfg: Config{Sink: "minio", Minio: MinioConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}}},
		{name: "unknown", cfg: Config{Sink: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sink == nil {
				t.Error("expected a sink")
			}
		})
	}
}

func TestNewMinioSink_DefaultBucket(t *testing.T) {
	sink, err := NewMinioSink(MinioConfig{Endpoint: "localhost:9000"})
	if err != nil {
		t.Fatalf("NewMinioSink() error = %v", err)
	}
	if sink.Bucket() != DefaultBucket {
		t.Errorf("bucket = %s, want %s", sink.Bucket(), DefaultBucket)
	}
}
