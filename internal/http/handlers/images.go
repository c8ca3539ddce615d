package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"imagerelay/internal/domain"
	"imagerelay/internal/imagegen"
	"imagerelay/internal/middleware"
)

// GenerateImage relays the prompt and answers with the public URL of the
// stored image. Every failure becomes a single detail message.
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxBodyBytes)
	var req imagegen.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid payload")
		return
	}

	img, err := a.Relay.Generate(r.Context(), req.Prompt)
	if err != nil {
		status, detail := errorDetail(err)
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Int("status", status).
			Msg("generate image failed")
		a.error(w, status, detail)
		return
	}

	imageURL := img.URL
	if strings.HasPrefix(imageURL, "/") {
		imageURL = requestBaseURL(r) + imageURL
	}
	a.json(w, http.StatusOK, imagegen.GenerateResponse{ImageURL: imageURL, Status: "success"})
}

func errorDetail(err error) (int, string) {
	var genErr *domain.GenerationError
	var dlErr *domain.DownloadError
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return http.StatusBadRequest, "Please enter a prompt."
	case errors.As(err, &genErr):
		return http.StatusInternalServerError, "Failed to generate image: " + genErr.Body
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusInternalServerError, "Failed to generate image: provider response did not contain an image URL"
	case errors.As(err, &dlErr), errors.Is(err, domain.ErrDownloadFailed):
		return http.StatusInternalServerError, "Failed to download image"
	case errors.Is(err, domain.ErrDecodeFailed):
		return http.StatusInternalServerError, "Failed to decode image"
	default:
		return http.StatusInternalServerError, "Failed to generate image"
	}
}

// requestBaseURL rebuilds scheme://host of the inbound request, honouring a
// proxy's X-Forwarded-Proto.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// Images serves generated files. Directory listings are not exposed.
func (a *App) Images() http.Handler {
	dir := a.ImagesDir()
	files := http.StripPrefix(imagegen.ImagesPath+"/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, imagegen.ImagesPath+"/")
		if name == "" || strings.HasSuffix(name, "/") || strings.Contains(name, "..") {
			http.NotFound(w, r)
			return
		}
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(path.Clean("/"+name))))
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
