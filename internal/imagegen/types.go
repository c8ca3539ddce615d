package imagegen

import "context"

// Generator asks a provider for one image and returns its remote URL.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ImagesPath is the URL prefix under which the output directory is served.
const ImagesPath = "/images"

// GenerateRequest is the inbound JSON body of the relay endpoint.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is returned on success.
type GenerateResponse struct {
	ImageURL string `json:"image_url"`
	Status   string `json:"status"`
}

// ErrorResponse carries the single user-visible failure message.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
