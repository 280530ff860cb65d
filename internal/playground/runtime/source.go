package runtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"codepad/internal/common/storage"
	appErr "codepad/pkg/errors"
)

// maxArchiveSize bounds downloads and local archive reads.
const maxArchiveSize = 64 << 20

// BootstrapSource fetches a runtime bundle.
type BootstrapSource interface {
	// Describe names the source in diagnostics, e.g. a URL or path.
	Describe() string
	Fetch(ctx context.Context) (*Bundle, error)
}

// EmbeddedSource serves the bundle compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Describe() string { return "embedded bundle" }

func (EmbeddedSource) Fetch(ctx context.Context) (*Bundle, error) {
	return EmbeddedBundle()
}

// DirSource reads *.lua files from a directory shipped next to the host.
type DirSource struct {
	Dir string
}

func (s DirSource) Describe() string { return s.Dir }

func (s DirSource) Fetch(ctx context.Context) (*Bundle, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleNotFound, "runtime bundle directory %s not found", s.Dir)
	}
	if !info.IsDir() {
		return nil, appErr.Newf(appErr.BundleInvalid, "%s is not a directory", s.Dir)
	}
	return bundleFromFS(os.DirFS(s.Dir), ".")
}

// ArchiveSource reads a local .tar.zst bundle.
type ArchiveSource struct {
	Path   string
	SHA256 string
}

func (s ArchiveSource) Describe() string { return s.Path }

func (s ArchiveSource) Fetch(ctx context.Context) (*Bundle, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleNotFound, "open runtime bundle %s failed", s.Path)
	}
	defer file.Close()
	data, err := readLimited(file)
	if err != nil {
		return nil, err
	}
	if err := verifyDigest(data, s.SHA256); err != nil {
		return nil, err
	}
	return ParseArchive(data)
}

// HTTPSource downloads the bundle from a content-delivery endpoint. A URL ending
// in .lua is taken as a bare prelude; anything else as a .tar.zst archive.
type HTTPSource struct {
	URL    string
	SHA256 string
	Client *http.Client
}

func (s HTTPSource) Describe() string { return s.URL }

func (s HTTPSource) Fetch(ctx context.Context) (*Bundle, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleFetchFailed, "build runtime request failed")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleFetchFailed, "fetch runtime bundle failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, appErr.Newf(appErr.BundleFetchFailed, "fetch runtime bundle failed: HTTP %d", resp.StatusCode)
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := verifyDigest(data, s.SHA256); err != nil {
		return nil, err
	}
	if strings.HasSuffix(urlPath(s.URL), ".lua") {
		b := &Bundle{Files: map[string][]byte{PreludeFile: data}}
		if err := b.validate(); err != nil {
			return nil, err
		}
		return b, nil
	}
	return ParseArchive(data)
}

// ObjectSource downloads a .tar.zst bundle from S3-compatible storage.
type ObjectSource struct {
	Storage storage.ObjectStorage
	Bucket  string
	Key     string
	SHA256  string
}

func (s ObjectSource) Describe() string { return fmt.Sprintf("s3://%s/%s", s.Bucket, s.Key) }

func (s ObjectSource) Fetch(ctx context.Context) (*Bundle, error) {
	if s.Storage == nil {
		return nil, appErr.New(appErr.StorageError).WithMessage("object storage is not configured")
	}
	stat, err := s.Storage.StatObject(ctx, s.Bucket, s.Key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleFetchFailed, "stat runtime bundle failed: %v", err)
	}
	if stat.SizeBytes > maxArchiveSize {
		return nil, appErr.New(appErr.BundleInvalid).WithMessage("runtime bundle is too large")
	}
	obj, err := s.Storage.GetObject(ctx, s.Bucket, s.Key, stat.ETag)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleFetchFailed, "fetch runtime bundle failed: %v", err)
	}
	defer obj.Close()
	data, err := readLimited(obj)
	if err != nil {
		return nil, err
	}
	if err := verifyDigest(data, s.SHA256); err != nil {
		return nil, err
	}
	return ParseArchive(data)
}

// SourceConfig selects where the runtime bundle comes from.
type SourceConfig struct {
	// BundlePath is a directory or .tar.zst used by packaged hosts.
	BundlePath string `yaml:"bundlePath"`
	// RemoteURL is an http(s):// or s3://bucket/key endpoint used by browser hosts.
	RemoteURL string `yaml:"remoteURL"`
	SHA256    string `yaml:"sha256"`
}

// SelectSource picks the bootstrap source for host. A browser host without a
// remote endpoint falls back to the embedded bundle.
func SelectSource(cfg SourceConfig, host HostKind, objects storage.ObjectStorage, client *http.Client) (BootstrapSource, error) {
	switch host {
	case HostPackaged:
		return localSource(cfg), nil
	case HostBrowser:
		if cfg.RemoteURL == "" {
			return EmbeddedSource{}, nil
		}
		return remoteSource(cfg, objects, client)
	default:
		return nil, appErr.Newf(appErr.InvalidValue, "unknown host kind %q", host)
	}
}

func localSource(cfg SourceConfig) BootstrapSource {
	switch {
	case cfg.BundlePath == "":
		return EmbeddedSource{}
	case strings.HasSuffix(cfg.BundlePath, ".tar.zst"):
		return ArchiveSource{Path: cfg.BundlePath, SHA256: cfg.SHA256}
	default:
		return DirSource{Dir: filepath.Clean(cfg.BundlePath)}
	}
}

func remoteSource(cfg SourceConfig, objects storage.ObjectStorage, client *http.Client) (BootstrapSource, error) {
	u, err := url.Parse(cfg.RemoteURL)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidValue, "invalid remote runtime url %q", cfg.RemoteURL)
	}
	switch u.Scheme {
	case "http", "https":
		return HTTPSource{URL: cfg.RemoteURL, SHA256: cfg.SHA256, Client: client}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, appErr.Newf(appErr.InvalidValue, "s3 url must be s3://bucket/key, got %q", cfg.RemoteURL)
		}
		return ObjectSource{Storage: objects, Bucket: u.Host, Key: key, SHA256: cfg.SHA256}, nil
	default:
		return nil, appErr.Newf(appErr.InvalidValue, "unsupported remote runtime scheme %q", u.Scheme)
	}
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxArchiveSize+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundleFetchFailed, "read runtime bundle failed: %v", err)
	}
	if len(data) > maxArchiveSize {
		return nil, appErr.New(appErr.BundleInvalid).WithMessage("runtime bundle is too large")
	}
	return data, nil
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Path
	}
	return raw
}
