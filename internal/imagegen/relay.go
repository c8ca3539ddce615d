package imagegen

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagerelay/internal/domain"
	"imagerelay/internal/infra"
	"imagerelay/internal/storage"
)

const (
	defaultMaxDownloadBytes = 32 << 20
	defaultMaxPixels        = 8192 * 8192
	maxFilenameAttempts     = 3
)

// RelayOptions wires a Relay.
type RelayOptions struct {
	Generator        Generator
	Store            *storage.FileStore
	HTTPClient       *http.Client
	PublicBaseURL    string
	MaxDownloadBytes int64
	MaxPixels        int64
	Logger           *infra.Logger
}

// Relay turns a prompt into a locally stored image: generate, download,
// decode, write. Each call is independent and nothing is retried.
type Relay struct {
	generator     Generator
	store         *storage.FileStore
	httpClient    *http.Client
	publicBaseURL string
	maxDownload   int64
	maxPixels     int64
	logger        *infra.Logger
	newName       func() string
}

// NewRelay validates the collaborators and applies defaults.
func NewRelay(opts RelayOptions) (*Relay, error) {
	if opts.Generator == nil {
		return nil, errors.New("imagegen: generator is required")
	}
	if opts.Store == nil {
		return nil, errors.New("imagegen: store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownloadBytes
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Relay{
		generator:     opts.Generator,
		store:         opts.Store,
		httpClient:    httpClient,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
		maxDownload:   maxDownload,
		maxPixels:     maxPixels,
		logger:        logger,
		newName:       randomFilename,
	}, nil
}

// Generate relays prompt to the provider and stores the result. On any error
// no file is left in the output directory.
func (r *Relay) Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	remoteURL, err := r.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	data, err := r.download(ctx, remoteURL)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagegen: %w: %v", domain.ErrDecodeFailed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > r.maxPixels {
		return nil, fmt.Errorf("imagegen: %w: dimensions %dx%d exceed limit", domain.ErrDecodeFailed, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagegen: %w: %v", domain.ErrDecodeFailed, err)
	}
	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return nil, fmt.Errorf("imagegen: %w: encode png: %v", domain.ErrDecodeFailed, err)
	}

	filename, localPath, err := r.write(ctx, encoded.Bytes())
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	r.logger.Debug().
		Str("file", filename).
		Str("source_format", format).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("imagegen: image stored")

	return &domain.GeneratedImage{
		RemoteURL: remoteURL,
		LocalPath: localPath,
		Filename:  filename,
		URL:       ImageURL(r.publicBaseURL, filename),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Bytes:     int64(encoded.Len()),
	}, nil
}

func (r *Relay) download(ctx context.Context, remoteURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(remoteURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("imagegen: %w: invalid image url %q", domain.ErrMalformedResponse, remoteURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: build download request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: %w: %v", domain.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.DownloadError{Status: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("imagegen: %w: read body: %v", domain.ErrDownloadFailed, err)
	}
	if int64(len(data)) > r.maxDownload {
		return nil, fmt.Errorf("imagegen: %w: image exceeds %d bytes", domain.ErrDownloadFailed, r.maxDownload)
	}
	return data, nil
}

func (r *Relay) write(ctx context.Context, data []byte) (string, string, error) {
	for attempt := 0; attempt < maxFilenameAttempts; attempt++ {
		filename := r.newName()
		path, err := r.store.Write(ctx, filename, data)
		if errors.Is(err, storage.ErrExists) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("imagegen: store image: %w", err)
		}
		return filename, path, nil
	}
	return "", "", fmt.Errorf("imagegen: store image: %w", storage.ErrExists)
}

// ImageURL joins the public base with the served filename. An empty base
// yields a root-relative URL.
func ImageURL(base, filename string) string {
	return strings.TrimRight(base, "/") + ImagesPath + "/" + filename
}

func randomFilename() string {
	id := uuid.New()
	return hex.EncodeToString(id[:]) + ".png"
}
