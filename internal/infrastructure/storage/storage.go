// Package storage resolves input and output locations.  Plain paths go to
// the local filesystem; "s3://bucket/key" URIs go to an object store
// registered for the scheme.
package storage

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/lsoma/pkg/errors"
)

// SchemeS3 is the scheme of object-store URIs.
const SchemeS3 = "s3"

// Store opens and creates flat files.
type Store interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Create(ctx context.Context, uri string) (io.WriteCloser, error)
}

// URI is a parsed location.  Path is set for local files; Bucket and Key for
// object-store URIs.
type URI struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

// Local reports whether u names a filesystem path.
func (u URI) Local() bool { return u.Scheme == "" }

func (u URI) String() string {
	if u.Local() {
		return u.Path
	}
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// ParseURI splits raw into its parts.  Strings without "://" are local
// paths.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return URI{}, errors.New(errors.ErrCodeConfigInvalid, "empty location")
	}
	if !strings.Contains(raw, "://") {
		return URI{Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "malformed location").WithDetailf("uri=%s", raw)
	}
	if u.Scheme == "file" {
		return URI{Path: u.Path}, nil
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return URI{}, errors.New(errors.ErrCodeConfigInvalid, "object location needs bucket and key").
			WithDetailf("uri=%s", raw)
	}
	return URI{Scheme: strings.ToLower(u.Scheme), Bucket: u.Host, Key: key}, nil
}

// LocalStore reads and writes the filesystem.
type LocalStore struct{}

// Open opens a local file.
func (LocalStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCanceled, "open canceled")
	}
	u, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(u)
	if err != nil {
		code := errors.ErrCodeIORead
		if os.IsNotExist(err) {
			code = errors.ErrCodeNotFound
		}
		return nil, errors.Wrap(err, code, "opening file").WithDetailf("path=%s", u)
	}
	return f, nil
}

// Create truncates or creates a local file, making parent directories.
func (LocalStore) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCanceled, "create canceled")
	}
	u, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(u); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeIOWrite, "creating directory").WithDetailf("dir=%s", dir)
		}
	}
	f, err := os.Create(u)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIOWrite, "creating file").WithDetailf("path=%s", u)
	}
	return f, nil
}

func localPath(uri string) (string, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if !u.Local() {
		return "", errors.New(errors.ErrCodeUnsupportedFormat, "not a local path").WithDetailf("uri=%s", uri)
	}
	return u.Path, nil
}

// Router dispatches on the URI scheme.
type Router struct {
	local   Store
	schemes map[string]Store
}

// NewRouter returns a Router whose local paths go to local.
func NewRouter(local Store) *Router {
	if local == nil {
		local = LocalStore{}
	}
	return &Router{local: local, schemes: make(map[string]Store)}
}

// Register routes URIs of scheme to s.
func (r *Router) Register(scheme string, s Store) {
	r.schemes[strings.ToLower(scheme)] = s
}

// Open opens uri on the store for its scheme.
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	s, err := r.route(uri)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, uri)
}

// Create creates uri on the store for its scheme.
func (r *Router) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	s, err := r.route(uri)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, uri)
}

func (r *Router) route(uri string) (Store, error) {
	u, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if u.Local() {
		return r.local, nil
	}
	s, ok := r.schemes[u.Scheme]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "no store registered for scheme").
			WithDetailf("scheme=%s", u.Scheme)
	}
	return s, nil
}
