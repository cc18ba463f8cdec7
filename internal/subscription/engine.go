package subscription

import (
	"context"
	"errors"
	"time"
)

// subscriptionTerm is the fixed length of a paid term.
const subscriptionTerm = 1 // years

// refreshWindow bounds how far apart two Activates for the same user may be
// observed and still count as the same logical checkout. The client
// confirmation fires seconds before (or after) the authoritative webhook, so
// the window only needs to cover redirect-to-webhook latency.
const refreshWindow = 10 * time.Minute

// amountToleranceCents absorbs rounding differences between the amount the
// client saw and the amount the provider settled.
const amountToleranceCents = 1

type Outcome string

const (
	// OutcomeApplied means the request activated (or re-activated) the
	// subscription and started a new term.
	OutcomeApplied Outcome = "applied"
	// OutcomeRefreshed means the request matched an activation already
	// applied for the same checkout under a different reference; denormalized
	// fields were updated but the term was not extended again.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeDuplicate means the request carried an already-applied payment
	// reference and was a no-op.
	OutcomeDuplicate Outcome = "duplicate"
)

var ErrNotActivate = errors.New("reconciliation engine only applies activate transitions")

// Engine is the convergence core shared by the webhook path and the client
// confirmation path. Whichever writer fires first, last, twice, or not at
// all, the stored record ends up the same.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Activate applies an Activate transition to the user's record and returns
// the resulting record together with what happened to the request.
func (e *Engine) Activate(ctx context.Context, req TransitionRequest) (*Record, Outcome, error) {
	if req.Kind != KindActivate {
		return nil, "", ErrNotActivate
	}

	outcome := OutcomeApplied
	rec, err := e.store.Mutate(ctx, req.UserID, func(current *Record) (*Record, error) {
		next, out := reconcile(current, req)
		outcome = out
		if out == OutcomeDuplicate {
			return nil, nil
		}
		return next, nil
	})
	if err != nil {
		return nil, "", err
	}
	return rec, outcome, nil
}

// reconcile decides, given the current record, what an Activate request does.
// It is pure: no clock reads, no I/O.
func reconcile(current *Record, req TransitionRequest) (*Record, Outcome) {
	if current != nil && current.LastAppliedPaymentRef != "" &&
		current.LastAppliedPaymentRef == req.PaymentRef {
		return current, OutcomeDuplicate
	}

	if current != nil && current.Status == StatusActive && sameCheckout(current, req) {
		next := *current
		next.Email = pickEmail(req, current)
		next.Plan = PlanForAmount(req.AmountCents)
		next.LastAppliedPaymentRef = req.PaymentRef
		next.LastPaymentCents = req.AmountCents
		observed := req.ObservedAt
		next.LastPaymentDate = &observed
		if next.ExternalCustomerRef == "" {
			next.ExternalCustomerRef = req.ExternalCustomerRef
		}
		return &next, OutcomeRefreshed
	}

	next := Record{UserID: req.UserID}
	if current != nil {
		next = *current
	}
	next.Email = pickEmail(req, current)
	next.Status = StatusActive
	next.Plan = PlanForAmount(req.AmountCents)
	next.LastAppliedPaymentRef = req.PaymentRef
	next.LastPaymentCents = req.AmountCents

	start := req.ObservedAt
	end := start.AddDate(subscriptionTerm, 0, 0)
	next.SubscriptionStart = &start
	next.SubscriptionEnd = &end
	next.LastPaymentDate = &start

	if next.ExternalCustomerRef == "" {
		next.ExternalCustomerRef = req.ExternalCustomerRef
	}

	return &next, OutcomeApplied
}

// sameCheckout reports whether an Activate under a new payment reference is
// the other writer's view of the checkout that already activated the record:
// materially the same amount, observed within the refresh window of the last
// applied payment.
func sameCheckout(current *Record, req TransitionRequest) bool {
	if current.LastPaymentDate == nil {
		return false
	}
	diff := req.AmountCents - current.LastPaymentCents
	if diff < -amountToleranceCents || diff > amountToleranceCents {
		return false
	}
	gap := req.ObservedAt.Sub(*current.LastPaymentDate)
	if gap < 0 {
		gap = -gap
	}
	return gap <= refreshWindow
}

// pickEmail never lets the stored email go empty: request value first, then
// whatever the record already holds, then the caller-supplied fallback.
func pickEmail(req TransitionRequest, current *Record) string {
	if req.Email != "" {
		return req.Email
	}
	if current != nil && current.Email != "" {
		return current.Email
	}
	return req.FallbackEmail
}
