package importfn

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// GCSObjects reads uploads from Cloud Storage
type GCSObjects struct {
	client *storage.Client
}

// NewGCSObjects wraps an authenticated storage client
func NewGCSObjects(client *storage.Client) *GCSObjects {
	return &GCSObjects{client: client}
}

// Open streams the object's current generation
func (g *GCSObjects) Open(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	return g.client.Bucket(bucket).Object(name).NewReader(ctx)
}
