package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/storage"
	"github.com/turtacn/lsoma/pkg/errors"
)

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".json": "application/json",
	".prom": "text/plain",
}

// Store implements storage.Store over an ObjectAPI.
type Store struct {
	api    ObjectAPI
	cfg    Config
	logger logging.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// NewStore wraps api.
func NewStore(api ObjectAPI, cfg Config, log logging.Logger) *Store {
	cfg.ApplyDefaults()
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Store{api: api, cfg: cfg, logger: log.Named("minio"), ready: make(map[string]bool)}
}

// Open streams the object named by uri.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := objectURI(uri)
	if err != nil {
		return nil, err
	}
	if _, err := s.api.StatObject(ctx, u.Bucket, u.Key, minio.StatObjectOptions{}); err != nil {
		return nil, objectError(err, "stat object", u)
	}
	body, err := s.api.GetObject(ctx, u.Bucket, u.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError(err, "get object", u)
	}
	s.logger.Debug("object opened", logging.String("uri", u.String()))
	return body, nil
}

// Create returns a writer that uploads the object on Close.
func (s *Store) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	u, err := objectURI(uri)
	if err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx, u.Bucket); err != nil {
		return nil, err
	}
	return &objectWriter{ctx: ctx, store: s, uri: u}, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready[bucket] {
		return nil
	}
	exists, err := s.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket existence").
			WithDetailf("bucket=%s", bucket)
	}
	if !exists {
		if !s.cfg.CreateBuckets {
			return errors.New(errors.ErrCodeNotFound, "bucket not found").WithDetailf("bucket=%s", bucket)
		}
		if err := s.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket").
				WithDetailf("bucket=%s", bucket)
		}
		s.logger.Info("created bucket", logging.String("bucket", bucket))
	}
	s.ready[bucket] = true
	return nil
}

func (s *Store) put(ctx context.Context, u storage.URI, body []byte) error {
	ct := contentTypes[path.Ext(u.Key)]
	if ct == "" {
		ct = "application/octet-stream"
	}
	info, err := s.api.PutObject(ctx, u.Bucket, u.Key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: ct, PartSize: s.cfg.PartSize})
	if err != nil {
		return objectError(err, "put object", u)
	}
	s.logger.Debug("object written", logging.String("uri", u.String()), logging.Int64("size", info.Size))
	return nil
}

// objectWriter buffers the whole artifact; outputs are small flat files.
type objectWriter struct {
	ctx    context.Context
	store  *Store
	uri    storage.URI
	buf    bytes.Buffer
	closed bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New(errors.ErrCodeIOWrite, "write after close").WithDetailf("uri=%s", w.uri)
	}
	return w.buf.Write(p)
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.store.put(w.ctx, w.uri, w.buf.Bytes())
}

func objectURI(uri string) (storage.URI, error) {
	u, err := storage.ParseURI(uri)
	if err != nil {
		return storage.URI{}, err
	}
	if u.Local() {
		return storage.URI{}, errors.New(errors.ErrCodeUnsupportedFormat, "not an object location").
			WithDetailf("uri=%s", uri)
	}
	return u, nil
}

func objectError(err error, op string, u storage.URI) error {
	code := errors.ErrCodeExternalService
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		code = errors.ErrCodeNotFound
	}
	return errors.Wrap(err, code, op+" failed").WithDetailf("uri=%s", u)
}
