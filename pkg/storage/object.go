package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ava-labs/keystore-cli/pkg/keystore"
)

const defaultObjectName = "keys.json"

// ObjectConfig configures the S3-compatible object backend.
type ObjectConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Object    string
	UseSSL    bool
	Timeout   time.Duration
}

// objectAPI is the subset of *minio.Client used here, so tests can run without a server.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}

func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}

func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Object stores the keystore document as a single object in a bucket.
type Object struct {
	api     objectAPI
	bucket  string
	name    string
	timeout time.Duration
}

// OpenObject connects to the object store and ensures the bucket exists.
func OpenObject(ctx context.Context, cfg ObjectConfig) (*Object, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return NewObjectWithAPI(ctx, minioClientWrapper{c: client}, cfg)
}

// NewObjectWithAPI allows injecting a mockable API.
func NewObjectWithAPI(ctx context.Context, api objectAPI, cfg ObjectConfig) (*Object, error) {
	o := &Object{
		api:     api,
		bucket:  cfg.Bucket,
		name:    cfg.Object,
		timeout: cfg.Timeout,
	}
	if o.name == "" {
		o.name = defaultObjectName
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := o.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return o, nil
}

func (o *Object) ensureBucketExists(ctx context.Context) error {
	exists, err := o.api.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := o.api.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// Load downloads the document. A missing object is an empty keystore.
func (o *Object) Load() (keystore.State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	obj, err := o.api.GetObject(ctx, o.bucket, o.name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return keystore.State{}, nil
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// minio reports a missing object on first read.
		if isNoSuchKey(err) {
			return keystore.State{}, nil
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	var state keystore.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	return emptyState(state), nil
}

// Persist uploads the complete document.
func (o *Object) Persist(state keystore.State) error {
	data, err := json.Marshal(emptyState(state))
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	_, err = o.api.PutObject(ctx, o.bucket, o.name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Close is a no-op; the minio client holds no resources that need releasing.
func (o *Object) Close() error {
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
