package storage

import (
	"context"
	"errors"
	"io"
)

// ErrUploadsDisabled is returned when no media backend is configured.
var ErrUploadsDisabled = errors.New("media uploads disabled")

// NoopStore rejects uploads and swallows deletes. It keeps the service
// usable when no bucket is configured.
type NoopStore struct{}

func (NoopStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, string, error) {
	return "", "", ErrUploadsDisabled
}

func (NoopStore) Delete(ctx context.Context, storageID string) error {
	return nil
}

var _ MediaStore = NoopStore{}
