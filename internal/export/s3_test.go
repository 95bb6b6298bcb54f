package export

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{
			name:    "bucket only",
			raw:     "s3://my-bucket",
			wantBkt: "my-bucket",
			wantPre: "",
		},
		{
			name:    "bucket with prefix",
			raw:     "s3://my-bucket/logscope/datasets/",
			wantBkt: "my-bucket",
			wantPre: "logscope/datasets",
		},
		{
			name:      "invalid scheme",
			raw:       "https://my-bucket/logscope",
			wantErr:   true,
			errSubstr: "s3:// scheme",
		},
		{
			name:      "missing bucket",
			raw:       "s3:///logscope",
			wantErr:   true,
			errSubstr: "missing bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"", true, ""},
		{"minio:9000", false, "http://minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://localhost:4566", true, "http://localhost:4566"},
	}
	for _, c := range cases {
		if got := normalizeEndpoint(c.in, c.useSSL); got != c.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", c.in, c.useSSL, got, c.want)
		}
	}
}

func TestNewS3Uploader_HalfCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(context.Background(), S3Config{
		BucketURL: "s3://my-bucket/logscope",
		AccessKey: "AKIA",
	})
	if err == nil {
		t.Fatal("expected error when only the access key is set")
	}
}

type fakePut struct {
	keys   []string
	bodies []string
}

func (f *fakePut) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Uploader_UploadFile(t *testing.T) {
	t.Parallel()

	local := filepath.Join(t.TempDir(), "out-0.parquet")
	if err := os.WriteFile(local, []byte("PAR1"), 0644); err != nil {
		t.Fatal(err)
	}

	fake := &fakePut{}
	u := &S3Uploader{client: fake, bucket: "bkt", keyPrefix: "logs"}
	if err := u.UploadFile(context.Background(), local, "run-1/out-0.parquet"); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if len(fake.keys) != 1 || fake.keys[0] != "bkt/logs/run-1/out-0.parquet" {
		t.Fatalf("keys = %v", fake.keys)
	}
	if fake.bodies[0] != "PAR1" {
		t.Fatalf("body = %q", fake.bodies[0])
	}
}

func TestS3Uploader_MissingFile(t *testing.T) {
	t.Parallel()

	u := &S3Uploader{client: &fakePut{}, bucket: "bkt"}
	if err := u.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope"), "k"); err == nil {
		t.Fatal("expected error for missing local file")
	}
}
