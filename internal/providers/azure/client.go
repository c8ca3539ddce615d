// Package azure calls the Azure OpenAI image generation endpoint of a
// DALL·E deployment.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagerelay/internal/domain"
	"imagerelay/internal/infra"
)

const maxResponseBytes = 1 << 20

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("azure: api key is required")
	// ErrMissingEndpoint indicates that no resource endpoint was configured.
	ErrMissingEndpoint = errors.New("azure: endpoint is required")
)

// Options configures the Azure OpenAI images client.
type Options struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Size       string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs the image generation call. It never retries.
type Client struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	size       string
	httpClient *http.Client
	logger     *infra.Logger
}

type generationRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type generationResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// NewClient validates the credentials and applies defaults.
func NewClient(opts Options) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	deployment := strings.TrimSpace(opts.Deployment)
	if deployment == "" {
		deployment = "dall-e-3"
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = "1024x1024"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		deployment: deployment,
		apiVersion: apiVersion,
		size:       size,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Deployment returns the configured deployment name.
func (c *Client) Deployment() string {
	return c.deployment
}

func (c *Client) generationURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/images/generations?api-version=%s",
		c.endpoint, url.PathEscape(c.deployment), url.QueryEscape(c.apiVersion))
}

// GenerateImage requests a single image for prompt and returns the remote URL
// of the result.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrEmptyPrompt
	}
	body, err := json.Marshal(generationRequest{Prompt: prompt, N: 1, Size: c.size})
	if err != nil {
		return "", fmt.Errorf("azure: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generationURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("azure: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure: http request: %w: %w", domain.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("azure: read response: %w: %w", domain.ErrGenerationFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domain.GenerationError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("azure: %w: %v", domain.ErrMalformedResponse, err)
	}
	if len(decoded.Data) == 0 {
		return "", fmt.Errorf("azure: %w: no data returned", domain.ErrMalformedResponse)
	}
	imageURL := strings.TrimSpace(decoded.Data[0].URL)
	if imageURL == "" {
		return "", fmt.Errorf("azure: %w: data[0].url missing", domain.ErrMalformedResponse)
	}
	c.logger.Debug().
		Str("deployment", c.deployment).
		Str("url", imageURL).
		Msg("azure: image generated")
	return imageURL, nil
}
