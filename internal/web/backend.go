package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imagerelay/internal/imagegen"
)

// ErrBackendUnavailable wraps transport failures talking to the relay API.
var ErrBackendUnavailable = errors.New("web: backend unavailable")

// BackendError is a non-2xx answer from the relay API. Detail is the
// message the API chose for the user.
type BackendError struct {
	Status int
	Detail string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend returned status %d", e.Status)
}

// BackendClient calls the relay API's generate endpoint.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewBackendClient(baseURL string, httpClient *http.Client) *BackendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	return &BackendClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

// Generate returns the public URL of the image produced for prompt.
func (c *BackendClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(imagegen.GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("web: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-image/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("web: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure imagegen.ErrorResponse
		_ = json.Unmarshal(body, &failure)
		return "", &BackendError{Status: resp.StatusCode, Detail: strings.TrimSpace(failure.Detail)}
	}
	var out imagegen.GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("web: decode response: %w", err)
	}
	if strings.TrimSpace(out.ImageURL) == "" {
		return "", errors.New("web: backend response missing image_url")
	}
	return out.ImageURL, nil
}
