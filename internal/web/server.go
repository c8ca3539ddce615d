// Package web serves the companion UI: a prompt form behind the per-session
// access gate, with Paystack checkout once the free image is used.
package web

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagerelay/internal/access"
	"imagerelay/internal/domain"
	"imagerelay/internal/infra"
	"imagerelay/internal/middleware"
	"imagerelay/internal/payment/paystack"
)

const (
	msgEmptyPrompt      = "Please enter a prompt."
	msgGenerated        = "Image generated successfully!"
	msgPaymentVerified  = "Payment verified. Unlimited generations unlocked."
	msgPaymentFailed    = "Payment could not be verified. Please try again."
	msgPaymentInvalid   = "That payment does not belong to this session."
	msgPaymentRetry     = "We could not confirm your payment yet."
	msgEmailRequired    = "Please enter a valid e-mail address."
	msgPaymentInitError = "Could not start the payment. Please try again."
)

// callback outcomes carried on the redirect back to the page
const (
	outcomeSuccess = "success"
	outcomeFailed  = "failed"
	outcomeInvalid = "invalid"
	outcomeRetry   = "retry"
)

// ImageBackend produces an image URL for a prompt.
type ImageBackend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PaymentProvider starts and verifies checkouts.
type PaymentProvider interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.Checkout, error)
	Verify(ctx context.Context, reference string) (*paystack.Transaction, error)
}

type Options struct {
	Config   *infra.WebConfig
	Sessions *access.Store
	Ledger   access.Ledger
	Backend  ImageBackend
	Payments PaymentProvider
	Logger   *infra.Logger
}

type Server struct {
	cfg      *infra.WebConfig
	sessions *access.Store
	ledger   access.Ledger
	backend  ImageBackend
	payments PaymentProvider
	logger   *infra.Logger
}

func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("web: config is required")
	}
	if opts.Backend == nil || opts.Payments == nil {
		return nil, errors.New("web: backend and payment provider are required")
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = access.NewStore(access.Options{TTL: opts.Config.SessionTTL})
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = access.NewMemoryLedger()
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Server{
		cfg:      opts.Config,
		sessions: sessions,
		ledger:   ledger,
		backend:  opts.Backend,
		payments: opts.Payments,
		logger:   logger,
	}, nil
}

// Index renders the page for the current session, including the outcome of
// a payment callback.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Snapshot(middleware.SessionIDFromContext(r.Context()))
	data := s.pageFor(r, state)
	switch r.URL.Query().Get("payment") {
	case outcomeSuccess:
		data.Success = msgPaymentVerified
	case outcomeFailed:
		data.Error = msgPaymentFailed
	case outcomeInvalid:
		data.Error = msgPaymentInvalid
	case outcomeRetry:
		data.Error = msgPaymentRetry
		if state.PendingPayment && state.PaymentReference != "" {
			data.RetryURL = "/payment/callback?reference=" + url.QueryEscape(state.PaymentReference)
		}
	}
	s.render(w, r, http.StatusOK, data)
}

// Generate consults the gate and, when allowed, asks the relay API for an
// image. The free use is spent on the click even when generation fails.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	prompt := strings.TrimSpace(r.PostFormValue("prompt"))
	if prompt == "" {
		data := s.pageFor(r, s.sessions.Snapshot(sessionID))
		data.Warning = msgEmptyPrompt
		s.render(w, r, http.StatusOK, data)
		return
	}

	var decision access.Decision
	var state access.State
	if err := s.sessions.Update(sessionID, func(g *access.Gate) error {
		decision = g.Attempt()
		state = g.State()
		return nil
	}); err != nil {
		s.fail(w, r, err)
		return
	}

	data := s.pageFor(r, state)
	data.Prompt = prompt
	if decision.NeedsPayment {
		s.render(w, r, http.StatusPaymentRequired, data)
		return
	}

	imageURL, err := s.backend.Generate(r.Context(), prompt)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Bool("free_tier", decision.UsedFreeTier).
			Msg("web: generate failed")
		data.Error = "Error generating image: " + err.Error()
		s.render(w, r, http.StatusBadGateway, data)
		return
	}
	data.ImageURL = imageURL
	data.Success = msgGenerated
	s.render(w, r, http.StatusOK, data)
}

// Pay starts a Paystack checkout for a session whose free use is spent and
// redirects the browser to the hosted payment page.
func (s *Server) Pay(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	state := s.sessions.Snapshot(sessionID)
	if state.Permitted() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	data := s.pageFor(r, state)
	data.Email = email
	if email == "" || !strings.Contains(email, "@") {
		data.Error = msgEmailRequired
		s.render(w, r, http.StatusBadRequest, data)
		return
	}

	checkout, err := s.payments.Initialize(r.Context(), paystack.InitializeRequest{
		Email:       email,
		Amount:      s.cfg.PaymentAmount,
		Currency:    s.cfg.PaymentCurrency,
		CallbackURL: s.cfg.PublicURL + "/payment/callback",
		Reference:   newReference(),
		Metadata:    map[string]string{"product": "imagerelay-unlimited"},
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("web: payment initialization failed")
		data.Error = msgPaymentInitError
		s.render(w, r, http.StatusBadGateway, data)
		return
	}

	if err := s.sessions.Update(sessionID, func(g *access.Gate) error {
		return g.BeginPayment(checkout.Reference)
	}); err != nil {
		if errors.Is(err, access.ErrAlreadyVerified) || errors.Is(err, access.ErrPaymentNotNeeded) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.fail(w, r, err)
		return
	}
	s.logger.Info().Str("reference", checkout.Reference).Msg("web: checkout started")
	http.Redirect(w, r, checkout.AuthorizationURL, http.StatusSeeOther)
}

// PaymentCallback verifies the reference Paystack redirected back with. Only
// the reference this session started is checked, and a verified reference is
// bound to the session in the ledger before the gate opens.
func (s *Server) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		reference = strings.TrimSpace(r.URL.Query().Get("trxref"))
	}

	var pending string
	_ = s.sessions.Update(sessionID, func(g *access.Gate) error {
		pending = g.PendingReference()
		return nil
	})
	if reference == "" || pending == "" || reference != pending {
		s.logger.Warn().Str("reference", reference).Msg("web: callback reference not pending for session")
		s.redirectOutcome(w, r, outcomeInvalid)
		return
	}

	tx, err := s.payments.Verify(r.Context(), reference)
	if err != nil {
		// outcome unknown: keep the reference pending so the callback can be retried
		s.logger.Error().Err(err).Str("reference", reference).Msg("web: payment verification unavailable")
		s.redirectOutcome(w, r, outcomeRetry)
		return
	}
	if !tx.Succeeded(s.cfg.PaymentAmount, s.cfg.PaymentCurrency) {
		s.logger.Warn().
			Str("reference", reference).
			Str("status", tx.Status).
			Int64("amount", tx.Amount).
			Str("currency", tx.Currency).
			Msg("web: payment not verified")
		_ = s.completePayment(sessionID, reference, false)
		s.redirectOutcome(w, r, outcomeFailed)
		return
	}

	err = s.ledger.Claim(r.Context(), domain.PaymentClaim{
		Reference: reference,
		SessionID: sessionID,
		Amount:    tx.Amount,
		Currency:  strings.ToUpper(tx.Currency),
	})
	switch {
	case errors.Is(err, domain.ErrReferenceClaimed):
		s.logger.Warn().Str("reference", reference).Msg("web: reference already claimed by another session")
		_ = s.completePayment(sessionID, reference, false)
		s.redirectOutcome(w, r, outcomeInvalid)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("reference", reference).Msg("web: ledger claim failed")
		s.redirectOutcome(w, r, outcomeRetry)
		return
	}

	if err := s.completePayment(sessionID, reference, true); err != nil {
		s.redirectOutcome(w, r, outcomeInvalid)
		return
	}
	s.logger.Info().
		Str("reference", reference).
		Str("paid_at", tx.PaidAt).
		Msg("web: payment verified")
	s.redirectOutcome(w, r, outcomeSuccess)
}

func (s *Server) completePayment(sessionID, reference string, verified bool) error {
	err := s.sessions.Update(sessionID, func(g *access.Gate) error {
		return g.CompletePayment(reference, verified)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("reference", reference).Msg("web: gate rejected payment result")
	}
	return err
}

func (s *Server) redirectOutcome(w http.ResponseWriter, r *http.Request, outcome string) {
	http.Redirect(w, r, "/?payment="+url.QueryEscape(outcome), http.StatusSeeOther)
}

func (s *Server) pageFor(r *http.Request, state access.State) pageData {
	locale := middleware.LocaleFromContext(r.Context())
	phase := state.Phase()
	return pageData{
		Lang:          locale.String(),
		Price:         FormatPrice(locale, s.cfg.PaymentAmount, s.cfg.PaymentCurrency),
		FreeAvailable: phase == access.PhaseFresh,
		NeedsPayment:  phase == access.PhasePendingPayment,
		Verified:      phase == access.PhaseVerified,
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := renderPage(w, data); err != nil {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("web: render page")
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("web: request failed")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func newReference() string {
	id := uuid.New()
	return "ir_" + hex.EncodeToString(id[:])
}
