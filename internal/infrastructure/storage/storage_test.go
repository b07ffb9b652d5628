package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/pkg/errors"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		raw  string
		want URI
	}{
		{"datos/renta.csv", URI{Path: "datos/renta.csv"}},
		{"file:///tmp/renta.csv", URI{Path: "/tmp/renta.csv"}},
		{"s3://lsoma/inputs/renta.xlsx", URI{Scheme: "s3", Bucket: "lsoma", Key: "inputs/renta.xlsx"}},
		{"S3://lsoma/a", URI{Scheme: "s3", Bucket: "lsoma", Key: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURI(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "s3://bucket", "s3:///key"} {
		_, err := ParseURI(bad)
		assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid), bad)
	}
	u, _ := ParseURI("s3://lsoma/out/log.csv")
	assert.Equal(t, "s3://lsoma/out/log.csv", u.String())
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	var s LocalStore

	w, err := s.Create(ctx, path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "a;b\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.Open(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "a;b\n", string(data))

	_, err = s.Open(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	_, err = s.Open(ctx, "s3://bucket/key")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedFormat))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Create(canceled, path)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
}

type memStore struct {
	files map[string]*bytes.Buffer
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (m *memStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	b, ok := m.files[uri]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "missing")
	}
	return io.NopCloser(bytes.NewReader(b.Bytes())), nil
}

func (m *memStore) Create(_ context.Context, uri string) (io.WriteCloser, error) {
	b := &bytes.Buffer{}
	m.files[uri] = b
	return nopWriteCloser{b}, nil
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	remote := &memStore{files: map[string]*bytes.Buffer{}}
	r := NewRouter(nil)
	r.Register("S3", remote)

	w, err := r.Create(ctx, "s3://lsoma/out.csv")
	require.NoError(t, err)
	_, _ = io.WriteString(w, "x")
	require.NoError(t, w.Close())
	assert.Contains(t, remote.files, "s3://lsoma/out.csv")

	rc, err := r.Open(ctx, "s3://lsoma/out.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "x", string(data))

	_, err = r.Open(ctx, "gs://lsoma/out.csv")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedFormat))

	local := filepath.Join(t.TempDir(), "l.csv")
	w, err = r.Create(ctx, local)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.FileExists(t, local)
}
