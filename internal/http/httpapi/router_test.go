package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"imagerelay/internal/http/handlers"
	"imagerelay/internal/imagegen"
	"imagerelay/internal/infra"
	"imagerelay/internal/providers/azure"
	"imagerelay/internal/storage"
)

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// newTestRouter wires the full relay against a fake provider.
func newTestRouter(t *testing.T, provider http.HandlerFunc, origins []string) (http.Handler, string) {
	t.Helper()
	upstream := httptest.NewServer(provider)
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cfg := &infra.Config{
		AzureEndpoint:      upstream.URL + "/",
		AzureAPIKey:        "test-key",
		DeploymentName:     "dall-e-3",
		APIVersion:         "2024-02-01",
		ImageSize:          "1024x1024",
		ImageSaveFolder:    dir,
		CORSAllowedOrigins: origins,
	}
	client, err := azure.NewClient(azure.Options{
		Endpoint:   cfg.AzureEndpoint,
		APIKey:     cfg.AzureAPIKey,
		Deployment: cfg.DeploymentName,
		APIVersion: cfg.APIVersion,
		Size:       cfg.ImageSize,
		HTTPClient: upstream.Client(),
	})
	if err != nil {
		t.Fatalf("azure client: %v", err)
	}
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	relay, err := imagegen.NewRelay(imagegen.RelayOptions{
		Generator:  client,
		Store:      store,
		HTTPClient: upstream.Client(),
	})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	return NewRouter(handlers.NewApp(relay, cfg, nil)), dir
}

func TestRouterGenerateServeRoundTrip(t *testing.T) {
	fixture := pngFixture(t)
	var providerURL string
	router, dir := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/images/generations"):
			providerURL = "http://" + r.Host
			fmt.Fprintf(w, `{"data":[{"url":"%s/blob/heart.png"}]}`, providerURL)
		case r.URL.Path == "/blob/heart.png":
			_, _ = w.Write(fixture)
		default:
			http.NotFound(w, r)
		}
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "http://relay.test/generate-image/", strings.NewReader(`{"prompt":"a labeled diagram of the human heart"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp imagegen.GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ImageURL, "http://relay.test/images/") || !strings.HasSuffix(resp.ImageURL, ".png") {
		t.Fatalf("unexpected image url %q", resp.ImageURL)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one stored file, got %d (%v)", len(entries), err)
	}

	get := httptest.NewRecorder()
	router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(resp.ImageURL, "http://relay.test"), nil))
	if get.Code != http.StatusOK {
		t.Fatalf("expected stored image to be served, got %d", get.Code)
	}
	if _, err := png.Decode(bytes.NewReader(get.Body.Bytes())); err != nil {
		t.Fatalf("served file is not a png: %v", err)
	}
}

func TestRouterProviderRateLimited(t *testing.T) {
	router, dir := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429","message":"Rate limit exceeded"}}`))
	}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate-image/", strings.NewReader(`{"prompt":"heart"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp imagegen.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.Detail, "Rate limit exceeded") {
		t.Fatalf("detail should carry provider body, got %q", resp.Detail)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no file should be written, found %d", len(entries))
	}
}

func TestRouterHealthAndCORS(t *testing.T) {
	router, _ := newTestRouter(t, http.NotFound, []string{"http://localhost:8501"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8501" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}
