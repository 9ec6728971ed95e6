package drive

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/snapmatch/internal/config"
)

// MinIODrive implements Drive against an S3-compatible bucket. An event's
// "folder" is a key prefix; the change-feed cursor is the RFC3339 timestamp of
// the newest object seen so far.
type MinIODrive struct {
	client *minio.Client
	bucket string
}

func NewMinIODrive(cfg config.SourceConfig) (*MinIODrive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIODrive{client: client, bucket: cfg.Bucket}, nil
}

func (d *MinIODrive) ListPhotos(ctx context.Context, folder string) ([]PhotoRef, error) {
	var photos []PhotoRef
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    folderPrefix(folder),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, &TransportError{Op: "list " + folder, Err: obj.Err}
		}
		if !isImageKey(obj.Key) {
			continue
		}
		photos = append(photos, PhotoRef{ID: obj.Key, Name: path.Base(obj.Key)})
	}
	return photos, nil
}

func (d *MinIODrive) Download(ctx context.Context, photoID string) ([]byte, error) {
	obj, err := d.client.GetObject(ctx, d.bucket, photoID, minio.GetObjectOptions{})
	if err != nil {
		return nil, &TransportError{Op: "get " + photoID, Err: err}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &TransportError{Op: "read " + photoID, Err: err}
	}
	return data, nil
}

func (d *MinIODrive) BaselineCursor(ctx context.Context, folder string) (string, error) {
	latest := time.Time{}
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    folderPrefix(folder),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", &TransportError{Op: "baseline " + folder, Err: obj.Err}
		}
		if obj.LastModified.After(latest) {
			latest = obj.LastModified
		}
	}
	if latest.IsZero() {
		latest = time.Now().UTC()
	}
	return latest.UTC().Format(time.RFC3339Nano), nil
}

func (d *MinIODrive) ListChanges(ctx context.Context, folder, cursor string) (string, []PhotoRef, error) {
	since, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return "", nil, fmt.Errorf("parse cursor %q: %w", cursor, ErrStaleCursor)
	}

	latest := since
	var changed []PhotoRef
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    folderPrefix(folder),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return "", nil, &TransportError{Op: "changes " + folder, Err: obj.Err}
		}
		if !isImageKey(obj.Key) || !obj.LastModified.After(since) {
			continue
		}
		changed = append(changed, PhotoRef{ID: obj.Key, Name: path.Base(obj.Key)})
		if obj.LastModified.After(latest) {
			latest = obj.LastModified
		}
	}

	return latest.UTC().Format(time.RFC3339Nano), changed, nil
}

// Ping checks storage connectivity.
func (d *MinIODrive) Ping(ctx context.Context) error {
	_, err := d.client.BucketExists(ctx, d.bucket)
	return err
}

func folderPrefix(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return ""
	}
	return folder + "/"
}

func isImageKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
