package subscription

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload builds a Stripe-Signature header value for the given payload,
// the way the provider does: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testEventPayload() []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_sig_1",
		"type": "payment_intent.succeeded",
		"api_version": "%s",
		"created": 1767225600,
		"data": {"object": {"id": "pi_sig_1", "object": "payment_intent", "amount": 999, "metadata": {"userId": "1"}}}
	}`, stripe.APIVersion))
}

func TestVerify_AcceptsProperlySignedEvent(t *testing.T) {
	v := NewVerifier(testWebhookSecret)
	payload := testEventPayload()
	header := signPayload(payload, testWebhookSecret, time.Now())

	event, err := v.Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_sig_1", event.ID)
}

func TestVerify_RejectsMissingSignature(t *testing.T) {
	v := NewVerifier(testWebhookSecret)

	_, err := v.Verify(testEventPayload(), "")
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	v := NewVerifier(testWebhookSecret)
	payload := testEventPayload()
	header := signPayload(payload, "whsec_other_secret", time.Now())

	_, err := v.Verify(payload, header)
	assert.Error(t, err)
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	v := NewVerifier(testWebhookSecret)
	payload := testEventPayload()
	header := signPayload(payload, testWebhookSecret, time.Now())

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	_, err := v.Verify(tampered, header)
	assert.Error(t, err)
}

func TestVerify_RejectsStaleTimestamp(t *testing.T) {
	v := NewVerifier(testWebhookSecret)
	payload := testEventPayload()
	header := signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour))

	_, err := v.Verify(payload, header)
	assert.Error(t, err)
}

func TestVerify_RejectsGarbageHeader(t *testing.T) {
	v := NewVerifier(testWebhookSecret)

	_, err := v.Verify(testEventPayload(), "not-a-signature")
	assert.Error(t, err)
}
