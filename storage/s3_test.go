package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// stubPutObject records the single PutObject call it receives.
type stubPutObject struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (s *stubPutObject) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.input = params
	if params.Body != nil {
		s.body, _ = io.ReadAll(params.Body)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNewArchiverWithClient_RequiresBucket(t *testing.T) {
	_, err := NewArchiverWithClient(S3Config{}, &stubPutObject{})
	if err == nil {
		t.Fatal("NewArchiverWithClient = nil, want error for missing bucket")
	}
}

func TestArchiver_Key(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   string
	}{
		{name: "no prefix", prefix: "", want: "duckduckgo_20260314_092653.jsonl"},
		{name: "with prefix", prefix: "runs/prod", want: "runs/prod/duckduckgo_20260314_092653.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewArchiverWithClient(S3Config{Bucket: "b", Prefix: tt.prefix}, &stubPutObject{})
			if err != nil {
				t.Fatalf("NewArchiverWithClient failed: %v", err)
			}
			got := a.Key("/var/log/drover/duckduckgo_20260314_092653.jsonl")
			if got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiver_Upload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duckduckgo_20260314_092653.jsonl")
	content := []byte(`{"status":"summary","platform":"duckduckgo"}` + "\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write log fixture: %v", err)
	}

	stub := &stubPutObject{}
	a, err := NewArchiverWithClient(S3Config{Bucket: "archive", Prefix: "results"}, stub)
	if err != nil {
		t.Fatalf("NewArchiverWithClient failed: %v", err)
	}

	if err := a.Upload(t.Context(), path); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if stub.input == nil {
		t.Fatal("PutObject never called")
	}
	if got := *stub.input.Bucket; got != "archive" {
		t.Errorf("bucket = %q, want archive", got)
	}
	if got := *stub.input.Key; got != "results/duckduckgo_20260314_092653.jsonl" {
		t.Errorf("key = %q, want prefixed filename", got)
	}
	if string(stub.body) != string(content) {
		t.Errorf("uploaded body = %q, want log contents", stub.body)
	}
}

func TestArchiver_UploadMissingFile(t *testing.T) {
	a, err := NewArchiverWithClient(S3Config{Bucket: "archive"}, &stubPutObject{})
	if err != nil {
		t.Fatalf("NewArchiverWithClient failed: %v", err)
	}
	if err := a.Upload(t.Context(), filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("Upload = nil, want error for missing log file")
	}
}
