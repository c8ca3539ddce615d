package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagerelay/internal/http/handlers"
	"imagerelay/internal/imagegen"
	"imagerelay/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	var origins []string
	if app.Config != nil {
		origins = app.Config.CORSAllowedOrigins
	}

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(origins),
	)

	r.Get("/health", app.Health)
	r.Post("/generate-image/", app.GenerateImage)
	r.Post("/generate-image", app.GenerateImage)
	r.Handle(imagegen.ImagesPath+"/*", app.Images())

	return r
}
