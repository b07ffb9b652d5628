package minio

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/lsoma/internal/infrastructure/storage"
	"github.com/turtacn/lsoma/internal/testutil"
	"github.com/turtacn/lsoma/pkg/errors"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockObjectAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

type StoreTestSuite struct {
	suite.Suite
	api   *MockObjectAPI
	log   *testutil.MockLogger
	store *Store
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	s.api = new(MockObjectAPI)
	s.log = testutil.NewMockLogger()
	s.store = NewStore(s.api, Config{CreateBuckets: true}, s.log)
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TestOpen() {
	s.api.On("StatObject", s.ctx, "lsoma", "in/renta.csv", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{Key: "in/renta.csv", Size: 3}, nil)
	s.api.On("GetObject", s.ctx, "lsoma", "in/renta.csv", minio.GetObjectOptions{}).
		Return(io.NopCloser(bytes.NewReader([]byte("a;b"))), nil)

	rc, err := s.store.Open(s.ctx, "s3://lsoma/in/renta.csv")
	s.Require().NoError(err)
	data, err := io.ReadAll(rc)
	s.Require().NoError(err)
	s.Equal("a;b", string(data))
	s.api.AssertExpectations(s.T())
}

func (s *StoreTestSuite) TestOpen_NotFound() {
	s.api.On("StatObject", s.ctx, "lsoma", "missing.csv", minio.StatObjectOptions{}).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "missing"})

	_, err := s.store.Open(s.ctx, "s3://lsoma/missing.csv")
	s.True(errors.IsCode(err, errors.ErrCodeNotFound))
	s.api.AssertNotCalled(s.T(), "GetObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *StoreTestSuite) TestOpen_RejectsLocalPath() {
	_, err := s.store.Open(s.ctx, "datos/renta.csv")
	s.True(errors.IsCode(err, errors.ErrCodeUnsupportedFormat))
}

func (s *StoreTestSuite) TestCreate_UploadsOnClose() {
	s.api.On("BucketExists", s.ctx, "out").Return(false, nil).Once()
	s.api.On("MakeBucket", s.ctx, "out", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil).Once()
	var uploaded []byte
	s.api.On("PutObject", s.ctx, "out", "run/log.csv", mock.Anything, int64(8),
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "text/csv" })).
		Run(func(args mock.Arguments) {
			uploaded, _ = io.ReadAll(args.Get(3).(io.Reader))
		}).
		Return(minio.UploadInfo{Size: 8}, nil).Once()

	w, err := s.store.Create(s.ctx, "s3://out/run/log.csv")
	s.Require().NoError(err)
	_, err = io.WriteString(w, "a;b\n1;2\n")
	s.Require().NoError(err)
	s.api.AssertNotCalled(s.T(), "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	s.Require().NoError(w.Close())
	s.Equal("a;b\n1;2\n", string(uploaded))
	s.NoError(w.Close())

	_, err = w.Write([]byte("late"))
	s.True(errors.IsCode(err, errors.ErrCodeIOWrite))

	// The bucket check is cached.
	_, err = s.store.Create(s.ctx, "s3://out/run/other.csv")
	s.NoError(err)
	s.api.AssertNumberOfCalls(s.T(), "BucketExists", 1)
	s.True(s.log.HasMessage("info", "created bucket"))
}

func (s *StoreTestSuite) TestCreate_MissingBucketWithoutCreate() {
	store := NewStore(s.api, Config{}, nil)
	s.api.On("BucketExists", s.ctx, "out").Return(false, nil)

	_, err := store.Create(s.ctx, "s3://out/x.csv")
	s.True(errors.IsCode(err, errors.ErrCodeNotFound))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *StoreTestSuite) TestCreate_PutFails() {
	s.api.On("BucketExists", s.ctx, "out").Return(true, nil)
	s.api.On("PutObject", s.ctx, "out", "x.bin", mock.Anything, int64(0), mock.Anything).
		Return(minio.UploadInfo{}, minio.ErrorResponse{Code: "AccessDenied"})

	w, err := s.store.Create(s.ctx, "s3://out/x.bin")
	s.Require().NoError(err)
	err = w.Close()
	s.True(errors.IsCode(err, errors.ErrCodeExternalService))
}

func (s *StoreTestSuite) TestRoutedThroughStorage() {
	s.api.On("StatObject", s.ctx, "lsoma", "q.csv", minio.StatObjectOptions{}).Return(minio.ObjectInfo{}, nil)
	s.api.On("GetObject", s.ctx, "lsoma", "q.csv", minio.GetObjectOptions{}).
		Return(io.NopCloser(bytes.NewReader(nil)), nil)

	r := storage.NewRouter(nil)
	r.Register(storage.SchemeS3, s.store)
	_, err := r.Open(s.ctx, "s3://lsoma/q.csv")
	s.NoError(err)
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func TestConfig(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, uint64(16*1024*1024), cfg.PartSize)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)

	assert.True(t, errors.IsCode(cfg.Validate(), errors.ErrCodeConfigInvalid))
	cfg.Endpoint = "localhost:9000"
	assert.Error(t, cfg.Validate())
	cfg.AccessKeyID, cfg.SecretAccessKey = "k", "s"
	require.NoError(t, cfg.Validate())
}
