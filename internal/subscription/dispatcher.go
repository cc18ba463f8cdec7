package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// userIDMetadataKey is the metadata field the checkout flow attaches to every
// payment intent so the webhook can be tied back to a user.
const userIDMetadataKey = "userId"

var (
	// ErrMissingUserID marks a verified payment event that carries no user
	// identity. This is a data-quality failure: the event is dropped and must
	// not be redelivered.
	ErrMissingUserID = errors.New("payment event missing user id metadata")
)

// Dispatch maps a verified provider event onto a TransitionRequest. The
// mapping is closed: every known event type is enumerated and anything else
// is an Ignore, never an error.
func Dispatch(event stripe.Event) (TransitionRequest, error) {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return paymentIntentRequest(event, KindActivate)

	case stripe.EventTypePaymentIntentPaymentFailed:
		req, err := paymentIntentRequest(event, KindMarkFailed)
		if errors.Is(err, ErrMissingUserID) {
			// Failure signals are log-only, so an unattributable one is
			// still just ignored.
			return TransitionRequest{Kind: KindIgnore, ObservedAt: observedAt(event)}, nil
		}
		return req, err

	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		// Audit-only in the current design; no record mutation.
		return TransitionRequest{Kind: KindIgnore, ObservedAt: observedAt(event)}, nil

	default:
		return TransitionRequest{Kind: KindIgnore, ObservedAt: observedAt(event)}, nil
	}
}

func paymentIntentRequest(event stripe.Event, kind TransitionKind) (TransitionRequest, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return TransitionRequest{}, fmt.Errorf("parse payment intent from %s event: %w", event.Type, err)
	}

	rawUserID := intent.Metadata[userIDMetadataKey]
	if rawUserID == "" {
		return TransitionRequest{}, ErrMissingUserID
	}
	userID, err := strconv.Atoi(rawUserID)
	if err != nil {
		return TransitionRequest{}, fmt.Errorf("%w: %q is not a user id", ErrMissingUserID, rawUserID)
	}

	customerRef := ""
	if intent.Customer != nil {
		customerRef = intent.Customer.ID
	}

	return TransitionRequest{
		Kind:                kind,
		UserID:              userID,
		Email:               intent.ReceiptEmail,
		PaymentRef:          intent.ID,
		AmountCents:         intent.Amount,
		ExternalCustomerRef: customerRef,
		ObservedAt:          observedAt(event),
		Source:              SourceWebhook,
	}, nil
}

func observedAt(event stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}
