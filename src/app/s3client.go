package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

type ClientMinio interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	EndpointURL() *url.URL
}

type MinioS3Client struct {
	bucketName string
	client     ClientMinio
	locks      keyLocks
	log        *logrus.Entry
}

const defaultContentType = "application/octet-stream"

// NewMinioS3Client creates a new MinioS3Client instance.
// endpoint may carry a scheme; minio wants host[:port] only.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool, log *logrus.Entry) (*MinioS3Client, error) {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		useSSL = useSSL || u.Scheme == "https"
		endpoint = u.Host
	}
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return newMinioS3Client(minioClient, bucketName, log), nil
}

func newMinioS3Client(client ClientMinio, bucketName string, log *logrus.Entry) *MinioS3Client {
	return &MinioS3Client{
		bucketName: bucketName,
		client:     client,
		locks:      keyLocks{m: make(map[string]*keyLock)},
		log:        log,
	}
}

// EnsureBucket creates the bucket on first start.
func (s3 *MinioS3Client) EnsureBucket(ctx context.Context) error {
	ok, err := s3.client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s3.bucketName, err)
	}
	if ok {
		return nil
	}
	if err := s3.client.MakeBucket(ctx, s3.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s3.bucketName, err)
	}
	s3.log.WithField("bucket", s3.bucketName).Info("bucket created")
	return nil
}

func (s3 *MinioS3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make([]ObjectInfo, 0)
	objectCh := s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return result, fmt.Errorf("list %s/%s: %w", s3.bucketName, prefix, object.Err)
		}
		result = append(result, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return result, nil
}

// Upload stores payload under key without overwriting. Concurrent uploads of
// the same key inside this process are serialized so exactly one wins.
func (s3 *MinioS3Client) Upload(ctx context.Context, key string, payload []byte, opts PutOptions) (string, error) {
	unlock := s3.locks.lock(key)
	defer unlock()

	_, err := s3.client.StatObject(ctx, s3.bucketName, key, minio.StatObjectOptions{})
	if err == nil {
		return "", fmt.Errorf("%s: %w", key, ErrObjectExists)
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return "", fmt.Errorf("stat %s: %w", key, err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err = s3.client.PutObject(ctx,
		s3.bucketName,
		key,
		bytes.NewReader(payload),
		int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType, CacheControl: opts.CacheControl})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func (s3 *MinioS3Client) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s3.client.GetObject(ctx, s3.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer object.Close()
	payload, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return payload, nil
}

func (s3 *MinioS3Client) Delete(ctx context.Context, keys ...string) error {
	opts := minio.RemoveObjectOptions{}
	for _, key := range keys {
		if err := s3.client.RemoveObject(ctx, s3.bucketName, key, opts); err != nil {
			return fmt.Errorf("remove %s/%s: %w", s3.bucketName, key, err)
		}
		s3.log.WithField("key", key).Debug("object removed")
	}
	return nil
}

// PublicURL is the path-style address of key; only readable if the bucket is public.
func (s3 *MinioS3Client) PublicURL(key string) string {
	u := *s3.client.EndpointURL()
	u.Path = path.Join("/", s3.bucketName, key)
	return u.String()
}

func (s3 *MinioS3Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	// Set request parameters for content-disposition.
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	presignedURL, err := s3.client.PresignedGetObject(ctx, s3.bucketName, key, ttl, reqParams)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return presignedURL.String(), nil
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key and forgets it when nobody holds it.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

func (k *keyLocks) lock(key string) func() {
	key = strings.TrimPrefix(key, "/")
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}
