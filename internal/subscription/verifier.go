package subscription

import (
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// signatureTolerance is the maximum allowed age of an event's signed
// timestamp. Older events are treated as replayed and rejected.
const signatureTolerance = 5 * time.Minute

var ErrMissingSignature = errors.New("missing webhook signature header")

// Verifier authenticates inbound provider events against the shared webhook
// secret before anything downstream looks at the payload.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(payload []byte, sigHeader string) (stripe.Event, error) {
	if sigHeader == "" {
		return stripe.Event{}, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithTolerance(payload, sigHeader, v.secret, signatureTolerance)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	return event, nil
}
