package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPrompt               = errors.New("prompt is required")
	ErrGenerationFailed          = errors.New("image generation failed")
	ErrMalformedResponse         = errors.New("malformed provider response")
	ErrDownloadFailed            = errors.New("image download failed")
	ErrDecodeFailed              = errors.New("image decode failed")
	ErrPaymentInitFailed         = errors.New("payment initialization failed")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrReferenceClaimed          = errors.New("payment reference already claimed")
)

// GenerationError is returned when the generation provider answers with a
// non-success status. Body holds the raw provider response.
type GenerationError struct {
	Status int
	Body   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("Failed to generate image: status %d: %s", e.Status, e.Body)
}

func (e *GenerationError) Unwrap() error { return ErrGenerationFailed }

// DownloadError is returned when fetching the generated image bytes answers
// with a non-success status.
type DownloadError struct {
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("Failed to download image: status %d", e.Status)
}

func (e *DownloadError) Unwrap() error { return ErrDownloadFailed }
