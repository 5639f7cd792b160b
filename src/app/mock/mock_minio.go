package minio_mock

import (
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify double of the minio calls the object store makes.
type MockClient struct {
	mock.Mock
	Endpoint *url.URL
}

func (m *MockClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

// ListObjects streams the []minio.ObjectInfo given to Return.
func (m *MockClient) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	objects, _ := args.Get(0).([]minio.ObjectInfo)
	ch := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		ch <- obj
	}
	close(ch)
	return ch
}

func (m *MockClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	info, _ := args.Get(0).(minio.ObjectInfo)
	return info, args.Error(1)
}

func (m *MockClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	obj, _ := args.Get(0).(*minio.Object)
	return obj, args.Error(1)
}

func (m *MockClient) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	u, _ := args.Get(0).(*url.URL)
	return u, args.Error(1)
}

func (m *MockClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	info, _ := args.Get(0).(minio.UploadInfo)
	return info, args.Error(1)
}

func (m *MockClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func (m *MockClient) EndpointURL() *url.URL {
	if m.Endpoint == nil {
		return &url.URL{Scheme: "http", Host: "localhost:9000"}
	}
	u := *m.Endpoint
	return &u
}
