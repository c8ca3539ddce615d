package imagegen

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"imagerelay/internal/domain"
	"imagerelay/internal/providers/azure"
	"imagerelay/internal/storage"
)

type stubGenerator struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

func (s *stubGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode sample png: %v", err)
	}
	return buf.Bytes()
}

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode sample jpeg: %v", err)
	}
	return buf.Bytes()
}

// oversizedPNG returns a small valid PNG whose header declares width x height.
func oversizedPNG(t *testing.T, width, height uint32) []byte {
	t.Helper()
	data := samplePNG(t)
	// signature(8) + length(4) + "IHDR"(4) + data(13) + crc(4)
	binary.BigEndian.PutUint32(data[16:20], width)
	binary.BigEndian.PutUint32(data[20:24], height)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func newTestRelay(t *testing.T, gen Generator, base string) (*Relay, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	relay, err := NewRelay(RelayOptions{Generator: gen, Store: store, PublicBaseURL: base})
	if err != nil {
		t.Fatalf("NewRelay error: %v", err)
	}
	return relay, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func imageServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected download method: %s", r.Method)
		}
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRelayGenerateHeartScenario(t *testing.T) {
	download := imageServer(t, http.StatusOK, samplePNG(t))
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"url":%q}]}`, download.URL+"/x.png")
	}))
	defer provider.Close()

	client, err := azure.NewClient(azure.Options{Endpoint: provider.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("azure.NewClient error: %v", err)
	}
	relay, dir := newTestRelay(t, client, "http://localhost:8000")

	got, err := relay.Generate(context.Background(), "A simplified anatomical diagram of the heart")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	pattern := regexp.MustCompile(`^http://localhost:8000/images/[0-9a-f]{32}\.png$`)
	if !pattern.MatchString(got.URL) {
		t.Fatalf("unexpected image url: %s", got.URL)
	}
	if !strings.HasSuffix(got.URL, got.Filename) {
		t.Fatalf("url %q does not reference file %q", got.URL, got.Filename)
	}
	if got.RemoteURL != download.URL+"/x.png" {
		t.Fatalf("unexpected remote url: %s", got.RemoteURL)
	}
	if n := countFiles(t, dir); n != 1 {
		t.Fatalf("expected exactly one file, got %d", n)
	}
	raw, err := os.ReadFile(filepath.Join(dir, got.Filename))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("stored file is not a png: %v", err)
	}
	if cfg.Width != 4 || cfg.Height != 3 {
		t.Fatalf("unexpected dimensions %dx%d", cfg.Width, cfg.Height)
	}
}

func TestRelayGenerateEmptyPrompt(t *testing.T) {
	gen := &stubGenerator{url: "https://prov/x.png"}
	relay, dir := newTestRelay(t, gen, "")
	for _, prompt := range []string{"", "   ", "\n\t"} {
		if _, err := relay.Generate(context.Background(), prompt); !errors.Is(err, domain.ErrEmptyPrompt) {
			t.Fatalf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times for empty prompts", gen.calls)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("expected no files, got %d", n)
	}
}

func TestRelayGenerateProviderRateLimited(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded"}}`))
	}))
	defer provider.Close()

	client, err := azure.NewClient(azure.Options{Endpoint: provider.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("azure.NewClient error: %v", err)
	}
	relay, dir := newTestRelay(t, client, "")

	_, err = relay.Generate(context.Background(), "heart")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Rate limit exceeded") {
		t.Fatalf("error should carry provider body: %v", err)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("expected no files, got %d", n)
	}
}

func TestRelayGenerateFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    []byte
		genErr  error
		wantErr error
	}{
		{name: "malformed response", genErr: fmt.Errorf("azure: %w", domain.ErrMalformedResponse), wantErr: domain.ErrMalformedResponse},
		{name: "download not found", status: http.StatusNotFound, body: []byte("gone"), wantErr: domain.ErrDownloadFailed},
		{name: "download server error", status: http.StatusBadGateway, wantErr: domain.ErrDownloadFailed},
		{name: "undecodable bytes", status: http.StatusOK, body: []byte("definitely not an image"), wantErr: domain.ErrDecodeFailed},
		{name: "oversized dimensions", status: http.StatusOK, body: oversizedPNG(t, 100000, 100000), wantErr: domain.ErrDecodeFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{err: tc.genErr}
			if tc.genErr == nil {
				gen.url = imageServer(t, tc.status, tc.body).URL + "/img"
			}
			relay, dir := newTestRelay(t, gen, "")
			_, err := relay.Generate(context.Background(), "heart")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if n := countFiles(t, dir); n != 0 {
				t.Fatalf("expected no files, got %d", n)
			}
		})
	}
}

func TestRelayGenerateDownloadStatusIsReported(t *testing.T) {
	gen := &stubGenerator{url: imageServer(t, http.StatusForbidden, nil).URL}
	relay, _ := newTestRelay(t, gen, "")
	_, err := relay.Generate(context.Background(), "heart")
	var dlErr *domain.DownloadError
	if !errors.As(err, &dlErr) || dlErr.Status != http.StatusForbidden {
		t.Fatalf("expected DownloadError 403, got %v", err)
	}
}

func TestRelayGenerateRejectsNonHTTPURL(t *testing.T) {
	gen := &stubGenerator{url: "file:///etc/passwd"}
	relay, dir := newTestRelay(t, gen, "")
	if _, err := relay.Generate(context.Background(), "heart"); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if n := countFiles(t, dir); n != 0 {
		t.Fatalf("expected no files, got %d", n)
	}
}

func TestRelayGenerateReencodesJPEGAsPNG(t *testing.T) {
	gen := &stubGenerator{url: imageServer(t, http.StatusOK, sampleJPEG(t)).URL}
	relay, dir := newTestRelay(t, gen, "")
	got, err := relay.Generate(context.Background(), "heart")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got.URL != "/images/"+got.Filename {
		t.Fatalf("expected root-relative url, got %s", got.URL)
	}
	raw, err := os.ReadFile(filepath.Join(dir, got.Filename))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("stored file is not a png: %v", err)
	}
}

func TestRelayGenerateEachCallWritesNewFile(t *testing.T) {
	gen := &stubGenerator{url: imageServer(t, http.StatusOK, samplePNG(t)).URL}
	relay, dir := newTestRelay(t, gen, "")
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		got, err := relay.Generate(context.Background(), "heart")
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if seen[got.Filename] {
			t.Fatalf("filename reused: %s", got.Filename)
		}
		seen[got.Filename] = true
	}
	if n := countFiles(t, dir); n != 3 {
		t.Fatalf("expected 3 files, got %d", n)
	}
}

func TestRelayGenerateRetriesFilenameCollision(t *testing.T) {
	gen := &stubGenerator{url: imageServer(t, http.StatusOK, samplePNG(t)).URL}
	relay, dir := newTestRelay(t, gen, "")
	if err := os.WriteFile(filepath.Join(dir, "taken.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	names := []string{"taken.png", "fresh.png"}
	relay.newName = func() string {
		name := names[0]
		names = names[1:]
		return name
	}
	got, err := relay.Generate(context.Background(), "heart")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if got.Filename != "fresh.png" {
		t.Fatalf("expected fresh.png, got %s", got.Filename)
	}
}

func TestImageURL(t *testing.T) {
	if got := ImageURL("http://host:8000/", "a.png"); got != "http://host:8000/images/a.png" {
		t.Fatalf("ImageURL = %q", got)
	}
	if got := ImageURL("", "a.png"); got != "/images/a.png" {
		t.Fatalf("ImageURL = %q", got)
	}
}
