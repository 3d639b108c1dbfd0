// Package pkgfetcher retrieves SDK archives from an ordered list of
// candidate sources.
package pkgfetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/schollz/progressbar/v3"

	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/logger"
	"github.com/open-edge-platform/sdk-provisioner/internal/utils/network"
)

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration
	Progress bool      // show a byte progress bar; off by default for speed
	Output   io.Writer // progress bar destination, os.Stderr when nil
	Keyring  string    // armored OpenPGP keyring for detached signatures
}

// Fetcher downloads one candidate at a time.
type Fetcher struct {
	client   *http.Client
	progress bool
	output   io.Writer
	keyring  string
}

// New returns a Fetcher using the shared secure HTTP client.
func New(opts Options) *Fetcher {
	return NewWithClient(network.NewSecureHTTPClient(opts.Timeout), opts)
}

// NewWithClient returns a Fetcher using the given client. Tests pass the
// httptest server client here.
func NewWithClient(client *http.Client, opts Options) *Fetcher {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &Fetcher{
		client:   client,
		progress: opts.Progress,
		output:   out,
		keyring:  opts.Keyring,
	}
}

// Fetch retrieves url into destDir. Expected failures (bad status, missing
// file, transport error) come back as *sdkpackage.TransportError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir string) (*sdkpackage.FetchResult, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, goerr.Wrap(err, "failed to create download directory", goerr.V("dir", destDir))
	}

	src, size, hint, err := f.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	name := hint
	if name == "" {
		name = archiveName(rawURL)
	}
	destPath := filepath.Join(destDir, name)

	out, err := os.Create(destPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create archive file", goerr.V("path", destPath))
	}
	defer out.Close()

	hasher := sha256.New()
	var w io.Writer = io.MultiWriter(out, hasher)
	if f.progress {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetDescription("downloading "+name),
			progressbar.OptionSetWriter(f.output),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		defer bar.Finish()
		w = io.MultiWriter(w, bar)
	}

	written, err := io.Copy(w, src)
	if err != nil {
		os.Remove(destPath)
		return nil, &sdkpackage.TransportError{URL: logger.RedactURL(rawURL), Err: err}
	}
	if err := out.Sync(); err != nil {
		os.Remove(destPath)
		return nil, goerr.Wrap(err, "failed to flush archive file", goerr.V("path", destPath))
	}

	return &sdkpackage.FetchResult{
		Path:   destPath,
		Size:   written,
		URL:    rawURL,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// open returns a reader for url, its size (-1 when unknown) and a file name
// hint from the server, if any.
func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, string, error) {
	redacted := logger.RedactURL(rawURL)

	if local, ok := localPath(rawURL); ok {
		fh, err := os.Open(local)
		if err != nil {
			return nil, 0, "", &sdkpackage.TransportError{URL: redacted, Err: err}
		}
		info, err := fh.Stat()
		if err != nil {
			fh.Close()
			return nil, 0, "", &sdkpackage.TransportError{URL: redacted, Err: err}
		}
		if info.IsDir() {
			fh.Close()
			return nil, 0, "", &sdkpackage.TransportError{URL: redacted, Err: fmt.Errorf("%s is a directory", local)}
		}
		return fh, info.Size(), "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, "", &sdkpackage.TransportError{URL: redacted, Err: redactError(err, redacted)}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, "", &sdkpackage.TransportError{URL: redacted, Err: redactError(err, redacted)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, "", &sdkpackage.TransportError{
			URL:    redacted,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("bad status: %s", resp.Status),
		}
	}
	return resp.Body, resp.ContentLength, responseFileName(resp), nil
}

// FetchFirst walks attempts in order and commits to the first success.
// Each failure is logged and the next attempt tried; when none succeed the
// returned error matches sdkpackage.ErrSourceUnavailable and carries every
// transport error.
func (f *Fetcher) FetchFirst(ctx context.Context, dep *sdkpackage.DependencySpec, attempts []sdkpackage.Attempt, destDir string) (*sdkpackage.FetchResult, error) {
	log := logger.Logger()

	var failures []error
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, goerr.Wrap(err, "fetch cancelled", goerr.V("dependency", dep.Name))
		}

		redacted := logger.RedactURL(a.URL)
		log.Infof("[%s] trying source %d/%d (%s): %s", dep.Name, i+1, len(attempts), a.Source, redacted)

		res, err := f.Fetch(ctx, a.URL, destDir)
		if err == nil {
			err = f.check(ctx, dep, a, res, destDir)
		}
		if err != nil {
			log.Warnf("[%s] source %s failed: %v", dep.Name, redacted, err)
			failures = append(failures, err)
			continue
		}

		res.Format = a.Format
		log.Infof("[%s] fetched %s (%d bytes)", dep.Name, filepath.Base(res.Path), res.Size)
		return res, nil
	}

	cause := errors.Join(append([]error{sdkpackage.ErrSourceUnavailable}, failures...)...)
	return nil, goerr.Wrap(cause, "all sources failed",
		goerr.V("dependency", dep.Name),
		goerr.V("attempts", len(attempts)))
}

// check validates a fetched archive against the configured digest and
// detached signature. A mismatch disqualifies this candidate only.
func (f *Fetcher) check(ctx context.Context, dep *sdkpackage.DependencySpec, a sdkpackage.Attempt, res *sdkpackage.FetchResult, destDir string) error {
	redacted := logger.RedactURL(a.URL)

	expected := a.Checksum
	if expected == "" && a.Source == sdkpackage.SourceStatic {
		expected = dep.Checksum
	}
	if expected != "" && !strings.EqualFold(expected, res.SHA256) {
		os.Remove(res.Path)
		return &sdkpackage.TransportError{
			URL: redacted,
			Err: fmt.Errorf("sha256 mismatch: expected %s, got %s", expected, res.SHA256),
		}
	}

	if a.SignatureURL == "" {
		return nil
	}
	if f.keyring == "" {
		logger.Logger().Warnf("[%s] signature available for %s but no keyring configured, skipping check", dep.Name, redacted)
		return nil
	}

	sig, err := f.Fetch(ctx, a.SignatureURL, filepath.Join(destDir, "signatures"))
	if err != nil {
		os.Remove(res.Path)
		return err
	}
	if err := VerifySignature(f.keyring, res.Path, sig.Path); err != nil {
		os.Remove(res.Path)
		return &sdkpackage.TransportError{URL: redacted, Err: err}
	}
	return nil
}

// redactError rewrites the URL carried by net/http errors, which would
// otherwise repeat the full query string.
func redactError(err error, redacted string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{Op: ue.Op, URL: redacted, Err: ue.Err}
	}
	return err
}

// localPath reports whether rawURL names a local file, either as a
// file:// URL or as a plain path.
func localPath(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, true
	}
	switch u.Scheme {
	case "file":
		return u.Path, true
	case "":
		return rawURL, true
	case "http", "https":
		return "", false
	default:
		// Windows drive letters parse as a one-letter scheme.
		if len(u.Scheme) == 1 {
			return rawURL, true
		}
		return "", false
	}
}

// responseFileName prefers the Content-Disposition file name, then the last
// path element of the final (post-redirect) URL.
func responseFileName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != "/" && params["filename"] != "" {
				return name
			}
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		name := path.Base(resp.Request.URL.Path)
		if name != "/" && name != "." && name != "" {
			return name
		}
	}
	return ""
}

// archiveName derives a file name from the URL path, ignoring the query.
func archiveName(rawURL string) string {
	if local, ok := localPath(rawURL); ok {
		return filepath.Base(local)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "download"
	}
	return name
}
