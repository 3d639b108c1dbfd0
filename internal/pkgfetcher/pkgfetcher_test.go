package pkgfetcher_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/m-mizutani/gt"

	"github.com/open-edge-platform/sdk-provisioner/internal/pkgfetcher"
	"github.com/open-edge-platform/sdk-provisioner/internal/sdkpackage"
)

func newServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h(w)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func serveBytes(data []byte) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func attempts(urls ...string) []sdkpackage.Attempt {
	out := make([]sdkpackage.Attempt, 0, len(urls))
	for _, u := range urls {
		out = append(out, sdkpackage.Attempt{Source: sdkpackage.SourceStatic, URL: u})
	}
	return out
}

func TestFetch_Success(t *testing.T) {
	payload := []byte("fake archive content")
	server := newServer(t, map[string]func(http.ResponseWriter){
		"/cudnn/cudnn-archive.tar.xz": serveBytes(payload),
	})

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	res, err := f.Fetch(context.Background(), server.URL+"/cudnn/cudnn-archive.tar.xz?token=abc", t.TempDir())
	gt.NoError(t, err)

	sum := sha256.Sum256(payload)
	gt.Value(t, filepath.Base(res.Path)).Equal("cudnn-archive.tar.xz")
	gt.Number(t, res.Size).Equal(int64(len(payload)))
	gt.Value(t, res.SHA256).Equal(hex.EncodeToString(sum[:]))

	data, err := os.ReadFile(res.Path)
	gt.NoError(t, err)
	gt.Value(t, data).Equal(payload)
}

func TestFetch_ContentDispositionName(t *testing.T) {
	server := newServer(t, map[string]func(http.ResponseWriter){
		"/download": func(w http.ResponseWriter) {
			w.Header().Set("Content-Disposition", `attachment; filename="TensorRT-8.6.1.6.Linux.x86_64-gnu.cuda-12.0.tar.gz"`)
			_, _ = w.Write([]byte("tgz"))
		},
	})

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	res, err := f.Fetch(context.Background(), server.URL+"/download", t.TempDir())
	gt.NoError(t, err)
	gt.Value(t, filepath.Base(res.Path)).Equal("TensorRT-8.6.1.6.Linux.x86_64-gnu.cuda-12.0.tar.gz")
}

func TestFetch_NotFoundIsTransportError(t *testing.T) {
	server := newServer(t, nil)

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	_, err := f.Fetch(context.Background(), server.URL+"/missing.zip", t.TempDir())
	gt.Error(t, err)

	var te *sdkpackage.TransportError
	gt.True(t, errors.As(err, &te))
	gt.Number(t, te.Status).Equal(http.StatusNotFound)
	gt.True(t, errors.Is(err, sdkpackage.ErrTransport))
}

func TestFetch_LocalPathAndFileURL(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "manual-download.zip")
	gt.NoError(t, os.WriteFile(src, []byte("zip"), 0644))

	f := pkgfetcher.New(pkgfetcher.Options{})

	res, err := f.Fetch(context.Background(), src, filepath.Join(dir, "dl1"))
	gt.NoError(t, err)
	gt.Value(t, filepath.Base(res.Path)).Equal("manual-download.zip")

	res, err = f.Fetch(context.Background(), "file://"+filepath.ToSlash(src), filepath.Join(dir, "dl2"))
	gt.NoError(t, err)
	gt.Number(t, res.Size).Equal(int64(3))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "nope.zip"), filepath.Join(dir, "dl3"))
	gt.True(t, errors.Is(err, sdkpackage.ErrTransport))
}

func TestFetch_TransportErrorHidesQuery(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	unreachable := server.URL + "/cudnn.tar.xz?X-Amz-Signature=SECRET123"
	server.Close()

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	_, err := f.Fetch(context.Background(), unreachable, t.TempDir())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, sdkpackage.ErrTransport))
	gt.Value(t, strings.Contains(err.Error(), "SECRET123")).Equal(false)
	gt.String(t, err.Error()).Contains("cudnn.tar.xz")

	_, err = f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "cudnn"},
		attempts(unreachable), t.TempDir())
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.Value(t, strings.Contains(err.Error(), "SECRET123")).Equal(false)
}

func TestFetchFirst_AdvancesToSecondCandidate(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/mirror-b/pkg.zip" {
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dep := &sdkpackage.DependencySpec{Name: "tensorrt"}
	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	res, err := f.FetchFirst(context.Background(), dep,
		attempts(server.URL+"/mirror-a/pkg.zip", server.URL+"/mirror-b/pkg.zip"), t.TempDir())
	gt.NoError(t, err)
	gt.Value(t, res.URL).Equal(server.URL + "/mirror-b/pkg.zip")
	mu.Lock()
	defer mu.Unlock()
	gt.Value(t, hits).Equal([]string{"/mirror-a/pkg.zip", "/mirror-b/pkg.zip"})
}

func TestFetchFirst_StopsAtFirstSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	_, err := f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "cuda"},
		attempts(server.URL+"/a.zip", server.URL+"/b.zip"), t.TempDir())
	gt.NoError(t, err)
	gt.Number(t, hits.Load()).Equal(int32(1))
}

func TestFetchFirst_AllFailIsSourceUnavailable(t *testing.T) {
	server := newServer(t, nil)

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	_, err := f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "cudnn"},
		attempts(server.URL+"/a.tar.xz", server.URL+"/b.tar.xz"), t.TempDir())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
	gt.True(t, errors.Is(err, sdkpackage.ErrTransport))
	gt.String(t, err.Error()).Contains("all sources failed")
}

func TestFetchFirst_NoAttempts(t *testing.T) {
	f := pkgfetcher.New(pkgfetcher.Options{})
	_, err := f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "cudnn"}, nil, t.TempDir())
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
}

func TestFetchFirst_ChecksumMismatchAdvances(t *testing.T) {
	good := []byte("good archive")
	sum := sha256.Sum256(good)
	server := newServer(t, map[string]func(http.ResponseWriter){
		"/tampered.zip": serveBytes([]byte("tampered archive")),
		"/good.zip":     serveBytes(good),
	})

	dep := &sdkpackage.DependencySpec{Name: "openvino", Checksum: hex.EncodeToString(sum[:])}
	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	res, err := f.FetchFirst(context.Background(), dep,
		attempts(server.URL+"/tampered.zip", server.URL+"/good.zip"), t.TempDir())
	gt.NoError(t, err)
	gt.Value(t, filepath.Base(res.Path)).Equal("good.zip")
}

func TestFetchFirst_CandidateChecksumWins(t *testing.T) {
	primary := sha256.Sum256([]byte("ubuntu22 archive"))
	fallback := []byte("ubuntu20 archive")
	fallbackSum := sha256.Sum256(fallback)
	server := newServer(t, map[string]func(http.ResponseWriter){
		"/ubuntu20.tgz": serveBytes(fallback),
	})

	dep := &sdkpackage.DependencySpec{Name: "openvino", Checksum: hex.EncodeToString(primary[:])}
	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{})
	res, err := f.FetchFirst(context.Background(), dep, []sdkpackage.Attempt{
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/ubuntu22.tgz"},
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/ubuntu20.tgz", Checksum: hex.EncodeToString(fallbackSum[:])},
	}, t.TempDir())
	gt.NoError(t, err)
	gt.Value(t, filepath.Base(res.Path)).Equal("ubuntu20.tgz")

	_, err = f.FetchFirst(context.Background(), dep, []sdkpackage.Attempt{
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/ubuntu20.tgz"},
	}, t.TempDir())
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))
}

func TestFetchFirst_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := pkgfetcher.New(pkgfetcher.Options{})
	_, err := f.FetchFirst(ctx, &sdkpackage.DependencySpec{Name: "cuda"}, attempts("/tmp/a.zip"), t.TempDir())
	gt.True(t, errors.Is(err, context.Canceled))
}

func TestFetchFirst_SignatureVerified(t *testing.T) {
	entity, err := openpgp.NewEntity("SDK Mirror", "test", "mirror@example.com", nil)
	gt.NoError(t, err)

	payload := []byte("signed archive payload")
	var sig bytes.Buffer
	gt.NoError(t, openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(payload), nil))

	dir := t.TempDir()
	keyringPath := filepath.Join(dir, "keyring.asc")
	kf, err := os.Create(keyringPath)
	gt.NoError(t, err)
	aw, err := armor.Encode(kf, openpgp.PublicKeyType, nil)
	gt.NoError(t, err)
	gt.NoError(t, entity.Serialize(aw))
	gt.NoError(t, aw.Close())
	gt.NoError(t, kf.Close())

	server := newServer(t, map[string]func(http.ResponseWriter){
		"/bad.tgz":      serveBytes([]byte("not what was signed")),
		"/bad.tgz.asc":  serveBytes(sig.Bytes()),
		"/good.tgz":     serveBytes(payload),
		"/good.tgz.asc": serveBytes(sig.Bytes()),
	})

	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{Keyring: keyringPath})
	res, err := f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "openvino"}, []sdkpackage.Attempt{
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/bad.tgz", SignatureURL: server.URL + "/bad.tgz.asc"},
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/good.tgz", SignatureURL: server.URL + "/good.tgz.asc"},
	}, filepath.Join(dir, "dl"))
	gt.NoError(t, err)
	gt.Value(t, filepath.Base(res.Path)).Equal("good.tgz")
}

func TestFetchFirst_MissingSignatureRemovesArchive(t *testing.T) {
	server := newServer(t, map[string]func(http.ResponseWriter){
		"/openvino.tgz": serveBytes([]byte("archive")),
	})

	dir := t.TempDir()
	dest := filepath.Join(dir, "dl")
	f := pkgfetcher.NewWithClient(server.Client(), pkgfetcher.Options{Keyring: filepath.Join(dir, "keyring.asc")})
	_, err := f.FetchFirst(context.Background(), &sdkpackage.DependencySpec{Name: "openvino"}, []sdkpackage.Attempt{
		{Source: sdkpackage.SourceStatic, URL: server.URL + "/openvino.tgz", SignatureURL: server.URL + "/openvino.tgz.asc"},
	}, dest)
	gt.True(t, errors.Is(err, sdkpackage.ErrSourceUnavailable))

	_, statErr := os.Stat(filepath.Join(dest, "openvino.tgz"))
	gt.True(t, os.IsNotExist(statErr))
}
