package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"imagerelay/internal/middleware"
)

// NewRouter mounts the UI routes behind request id, locale and session
// middleware. lookup may be nil when no GeoIP database is configured.
func NewRouter(s *Server, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*s.logger),
		middleware.I18N(s.cfg.DefaultLocale, lookup),
		middleware.Session(s.cfg.SessionSecret, s.cfg.SessionTTL, s.cfg.CookieSecure),
	)

	r.Get("/", s.Index)
	r.Post("/generate", s.Generate)
	r.Post("/pay", s.Pay)
	r.Get("/payment/callback", s.PaymentCallback)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
