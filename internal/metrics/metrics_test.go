package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/subscription", "200", 0.5)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/subscription", "200"))
	assert.Equal(t, float64(1), count)
}

func TestRecordWebhookEvent(t *testing.T) {
	WebhookEventsTotal.Reset()

	RecordWebhookEvent("payment_intent.succeeded", "applied")
	RecordWebhookEvent("payment_intent.succeeded", "applied")
	RecordWebhookEvent("payment_intent.succeeded", "duplicate")

	applied := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("payment_intent.succeeded", "applied"))
	duplicate := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("payment_intent.succeeded", "duplicate"))

	assert.Equal(t, float64(2), applied)
	assert.Equal(t, float64(1), duplicate)
}

func TestRecordActivation(t *testing.T) {
	ActivationsTotal.Reset()

	RecordActivation("premium", "webhook")
	RecordActivation("basic", "client")

	premium := testutil.ToFloat64(ActivationsTotal.WithLabelValues("premium", "webhook"))
	basic := testutil.ToFloat64(ActivationsTotal.WithLabelValues("basic", "client"))

	assert.Equal(t, float64(1), premium)
	assert.Equal(t, float64(1), basic)
}

func TestRecordAccessCheck(t *testing.T) {
	AccessChecksTotal.Reset()

	RecordAccessCheck(true)
	RecordAccessCheck(true)
	RecordAccessCheck(false)

	allowed := testutil.ToFloat64(AccessChecksTotal.WithLabelValues("allowed"))
	denied := testutil.ToFloat64(AccessChecksTotal.WithLabelValues("denied"))

	assert.Equal(t, float64(2), allowed)
	assert.Equal(t, float64(1), denied)
}
