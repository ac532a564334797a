// Package storage stores user avatars in a Supabase storage bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, prefix, contentType string) (string, error)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type SupabaseUploader struct {
	client *storage_go.Client
	bucket string
}

// NewSupabaseUploader connects to the storage API of the Supabase project at
// projectURL.
func NewSupabaseUploader(projectURL, apiKey, bucket string) *SupabaseUploader {
	client := storage_go.NewClient(strings.TrimRight(projectURL, "/")+"/storage/v1", apiKey, nil)
	return &SupabaseUploader{client: client, bucket: bucket}
}

// Upload writes data under prefix with a random object name. The storage
// client has no context support, so ctx is only checked before the call.
func (u *SupabaseUploader) Upload(ctx context.Context, data []byte, prefix, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := objectPath(prefix, contentType)
	upsert := false
	_, err := u.client.UploadFile(u.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}

	return u.client.GetPublicUrl(u.bucket, path).SignedURL, nil
}

func objectPath(prefix, contentType string) string {
	return strings.Trim(prefix, "/") + "/" + uuid.NewString() + extensions[contentType]
}
