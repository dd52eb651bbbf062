package gcp

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ReadGCSObject reads an entire GCS object into memory. Batch payloads are
// single scanned documents, small enough that streaming to disk first is not
// worth the temp-file bookkeeping.
func ReadGCSObject(ctx context.Context, bucket *storage.BucketHandle, objectName string) ([]byte, error) {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
	}
	return data, nil
}
