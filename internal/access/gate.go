// Package access implements the per-session free-tier/paid gate of the web UI.
package access

import (
	"errors"
	"strings"
)

// Phase names the gate state machine positions.
type Phase string

const (
	PhaseFresh          Phase = "fresh"
	PhaseFreeUsed       Phase = "free_used"
	PhasePendingPayment Phase = "pending_payment"
	PhaseVerified       Phase = "verified"
)

var (
	ErrAlreadyVerified   = errors.New("access: session already verified")
	ErrPaymentNotNeeded  = errors.New("access: free generation still available")
	ErrMissingReference  = errors.New("access: payment reference is required")
	ErrReferenceMismatch = errors.New("access: payment reference does not belong to this session")
)

// State is the SessionAccessState. Generation is permitted iff the free
// generation is unused or a payment was verified.
type State struct {
	FreeGenerationUsed bool
	PendingPayment     bool
	PaymentReference   string
	PaymentVerified    bool
}

// Permitted reports whether the next generation may proceed.
func (s State) Permitted() bool {
	return !s.FreeGenerationUsed || s.PaymentVerified
}

// Phase maps the flags onto the state machine.
func (s State) Phase() Phase {
	switch {
	case !s.FreeGenerationUsed:
		return PhaseFresh
	case s.PaymentVerified:
		return PhaseVerified
	case s.PendingPayment:
		return PhasePendingPayment
	default:
		return PhaseFreeUsed
	}
}

// Decision is the outcome of a generate click.
type Decision struct {
	Allowed      bool
	NeedsPayment bool
	UsedFreeTier bool
}

// Gate mutates one session's State. It is not safe for concurrent use; Store
// serializes access.
type Gate struct {
	state State
}

// State returns a copy of the current state.
func (g *Gate) State() State {
	return g.state
}

// Attempt is called when the user asks for a generation.
func (g *Gate) Attempt() Decision {
	switch g.state.Phase() {
	case PhaseFresh:
		g.state.FreeGenerationUsed = true
		return Decision{Allowed: true, UsedFreeTier: true}
	case PhaseVerified:
		return Decision{Allowed: true}
	default:
		g.state.PendingPayment = true
		return Decision{NeedsPayment: true}
	}
}

// BeginPayment records the reference of a checkout started by this session.
func (g *Gate) BeginPayment(reference string) error {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ErrMissingReference
	}
	switch g.state.Phase() {
	case PhaseFresh:
		return ErrPaymentNotNeeded
	case PhaseVerified:
		return ErrAlreadyVerified
	}
	g.state.PendingPayment = true
	g.state.PaymentReference = reference
	return nil
}

// PendingReference returns the reference awaiting verification, if any.
func (g *Gate) PendingReference() string {
	if g.state.PaymentVerified {
		return ""
	}
	return g.state.PaymentReference
}

// CompletePayment applies a verification result. A reference that this
// session did not start is rejected without touching the pending one.
// Unverified references are discarded and the gate returns to PendingPayment.
func (g *Gate) CompletePayment(reference string, verified bool) error {
	reference = strings.TrimSpace(reference)
	if g.state.PaymentVerified {
		return ErrAlreadyVerified
	}
	if reference == "" {
		return ErrMissingReference
	}
	if g.state.PaymentReference == "" || reference != g.state.PaymentReference {
		return ErrReferenceMismatch
	}
	if !verified {
		g.state.PaymentReference = ""
		g.state.PendingPayment = true
		return nil
	}
	g.state.PaymentVerified = true
	g.state.PendingPayment = false
	return nil
}
