package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"imagerelay/internal/domain"
	"imagerelay/internal/imagegen"
	"imagerelay/internal/infra"
)

// ImageRelay produces one stored image per prompt.
type ImageRelay interface {
	Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error)
}

type App struct {
	Relay        ImageRelay
	Config       *infra.Config
	Logger       *infra.Logger
	MaxBodyBytes int64
	ServiceName  string
}

func NewApp(relay ImageRelay, cfg *infra.Config, logger *infra.Logger) *App {
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &App{
		Relay:        relay,
		Config:       cfg,
		Logger:       logger,
		MaxBodyBytes: 64 << 10,
		ServiceName:  "imagerelay",
	}
}

// ImagesDir is the directory served under imagegen.ImagesPath.
func (a *App) ImagesDir() string {
	if a.Config == nil || a.Config.ImageSaveFolder == "" {
		return "generated_images"
	}
	return a.Config.ImageSaveFolder
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, detail string) {
	a.json(w, code, imagegen.ErrorResponse{Detail: detail})
}
