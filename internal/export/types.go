package export

import "context"

// Config controls shipping a finished dataset to object storage.
type Config struct {
	Enabled   bool
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
	S3PathStyle    bool
}

// Uploader uploads one local file under the given object key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, key string) error
}

// Dataset is what the exporter needs from a written dataset.
type Dataset interface {
	RunID() string
	Target() string
	Units() []string
}
