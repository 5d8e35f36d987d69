// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kegworks/keg/pkg/formula"
)

const (
	// DefaultAttempts is the default retry budget for transient failures.
	DefaultAttempts = 3
	// DefaultBackoff is the delay before the first retry; it doubles afterwards.
	DefaultBackoff = 500 * time.Millisecond
	// DefaultTimeout bounds a single download attempt.
	DefaultTimeout = 10 * time.Minute

	// maxArtifactBytes caps a single download (2 GiB).
	maxArtifactBytes = 2 << 30

	downloadsDir = "downloads"
)

type (
	// Fetcher downloads source artifacts into a content-addressed cache and
	// verifies them against the formula checksum. Safe for concurrent use.
	Fetcher struct {
		httpClient *http.Client
		cacheDir   string
		attempts   int
		backoff    time.Duration
		timeout    time.Duration
		userAgent  string
	}

	// Option configures a Fetcher.
	Option func(*Fetcher)

	// Artifact is a verified download.
	Artifact struct {
		// Path is the verified file inside the download cache.
		Path   string
		URL    string
		SHA256 formula.Checksum
		Size   int64
		// FromCache is true when no network request was needed.
		FromCache bool
		// Attempts is the number of download attempts made (0 on a cache hit).
		Attempts int
	}

	// statusError is a non-200 HTTP response.
	statusError struct {
		code int
	}
)

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.code, http.StatusText(e.code))
}

// WithHTTPClient sets the HTTP client, mainly for tests and proxies.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithAttempts sets the retry budget. Values below 1 are ignored.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

// WithBackoff sets the initial retry delay.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) { f.backoff = d }
}

// WithTimeout bounds each download attempt. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// New creates a Fetcher that keeps verified artifacts under cacheDir/downloads.
func New(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: http.DefaultClient,
		cacheDir:   cacheDir,
		attempts:   DefaultAttempts,
		backoff:    DefaultBackoff,
		timeout:    DefaultTimeout,
		userAgent:  "keg/dev",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CachePath returns where the artifact for rawURL with digest sum is cached.
func (f *Fetcher) CachePath(rawURL string, sum formula.Checksum) string {
	return filepath.Join(f.cacheDir, downloadsDir, string(sum.Normalize())+"--"+artifactName(rawURL))
}

// Fetch returns a verified copy of the artifact at rawURL. A cached copy is
// re-hashed before use. Downloads stream into a temp file next to the cache
// entry while being hashed; only a file whose digest equals want is renamed
// into the cache. Transient failures are retried; a digest mismatch is
// returned immediately as *ChecksumMismatchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, want formula.Checksum) (*Artifact, error) {
	want = want.Normalize()
	dest := f.CachePath(rawURL, want)

	if a, ok := f.fromCache(dest, rawURL, want); ok {
		return a, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("create download cache: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	var (
		attempts int
		tmpPath  string
		got      formula.Checksum
		size     int64
	)
	err = RetryWithBackoff(ctx, f.attempts, f.backoff, func(attempt int) (bool, error) {
		attempts = attempt + 1
		var dlErr error
		tmpPath, got, size, dlErr = f.download(ctx, u, filepath.Dir(dest))
		if dlErr == nil {
			return false, nil
		}
		retry := ctx.Err() == nil && isRetryable(dlErr)
		if retry && attempts < f.attempts {
			slog.Warn("download failed, retrying", "url", rawURL, "attempt", attempts, "error", dlErr)
		}
		return retry, dlErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		fe := &FetchError{URL: rawURL, Attempts: attempts, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			fe.StatusCode = se.code
		}
		return nil, fe
	}

	if got != want {
		_ = os.Remove(tmpPath)
		return nil, &ChecksumMismatchError{URL: rawURL, Expected: want, Got: got}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("promote download: %w", err)
	}

	slog.Debug("artifact fetched", "url", rawURL, "bytes", size, "attempts", attempts)
	return &Artifact{Path: dest, URL: rawURL, SHA256: got, Size: size, Attempts: attempts}, nil
}

func (f *Fetcher) fromCache(dest, rawURL string, want formula.Checksum) (*Artifact, bool) {
	info, err := os.Stat(dest)
	if err != nil {
		return nil, false
	}
	if err := VerifyFile(dest, want, dest); err != nil {
		slog.Warn("discarding corrupt cache entry", "path", dest, "error", err)
		_ = os.Remove(dest)
		return nil, false
	}
	slog.Debug("artifact served from cache", "path", dest)
	return &Artifact{Path: dest, URL: rawURL, SHA256: want, Size: info.Size(), FromCache: true}, true
}

// download performs one attempt, writing into a temp file in dir. The temp
// file is removed on every error path.
func (f *Fetcher) download(ctx context.Context, u *url.URL, dir string) (_ string, _ formula.Checksum, _ int64, err error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	body, err := f.open(ctx, u)
	if err != nil {
		return "", "", 0, err
	}
	defer func() { _ = body.Close() }() // read-only

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(body, maxArtifactBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", 0, ctxErr
		}
		return "", "", 0, fmt.Errorf("reading body: %w", err)
	}
	if n > maxArtifactBytes {
		return "", "", 0, fmt.Errorf("artifact exceeds %d bytes", int64(maxArtifactBytes))
	}

	return tmp.Name(), formula.Checksum(hex.EncodeToString(h.Sum(nil))), n, nil
}

func (f *Fetcher) open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	switch u.Scheme {
	case "file":
		file, err := os.Open(filepath.FromSlash(u.Path))
		if err != nil {
			return nil, permanent(err)
		}
		return file, nil
	case "http", "https":
	default:
		return nil, permanent(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
	return resp.Body, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// isRetryable classifies a download error: transport failures, 408, 429 and
// 5xx are transient; other statuses, file errors and bad URLs are not.
func isRetryable(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusRequestTimeout ||
			se.code == http.StatusTooManyRequests ||
			se.code >= http.StatusInternalServerError
	}
	return true
}

// Name returns the file name of the artifact as published at its URL.
func (a *Artifact) Name() string { return artifactName(a.URL) }

// artifactName derives a file name from the last URL path segment.
func artifactName(rawURL string) string {
	name := "artifact"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			name = base
		}
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
}
