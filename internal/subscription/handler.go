package subscription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"classpass/internal/auth"
	"classpass/internal/config"
	"classpass/internal/logger"
	"classpass/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	maxWebhookBody = 64 << 10

	// Store writes are retried a bounded number of times before the failure
	// is surfaced to the transport.
	storeRetries    = 3
	storeRetryDelay = 100 * time.Millisecond
	storeTimeout    = 5 * time.Second
)

// Mailer queues a notification email. Nil-able; activation receipts are best
// effort and never fail a transition.
type Mailer interface {
	Send(ctx context.Context, to, name, subject, body string) error
}

type Handler struct {
	store    Store
	engine   *Engine
	verifier *Verifier
	gate     *AccessGate
	mailer   Mailer
}

func NewHandler(db *sqlx.DB, cfg *config.Config, mailer Mailer) *Handler {
	repo := NewRepository(db)
	return &Handler{
		store:    repo,
		engine:   NewEngine(repo),
		verifier: NewVerifier(cfg.StripeWebhookSecret),
		gate:     NewAccessGate(AdminEmailPolicy{AdminEmail: cfg.AdminEmail}),
		mailer:   mailer,
	}
}

// HandleWebhook godoc
// @Summary      Payment provider webhook
// @Description  Verifies and applies payment provider events. 200 means verified and either applied or deliberately ignored.
// @Tags         subscription
// @Accept       json
// @Produce      json
// @Success      200 {object} api.ReceivedResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /webhooks/payments [post]
func (h *Handler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		logger.Error("Webhook rejected",
			"error", err,
			"client_ip", c.ClientIP(),
		)
		metrics.RecordWebhookVerifyFailure()
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	req, err := Dispatch(event)
	if err != nil {
		// Data-quality failure: the event is authentic but unusable. Drop it
		// and acknowledge so the provider does not redeliver.
		logger.Errorf("Dropping unusable %s event %s: %v", event.Type, event.ID, err)
		metrics.RecordWebhookEvent(string(event.Type), "dropped")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch req.Kind {
	case KindIgnore:
		logger.Debugf("Ignoring %s event %s", event.Type, event.ID)
		metrics.RecordWebhookEvent(string(event.Type), "ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})

	case KindMarkFailed:
		// Log-only: a failure signal never mutates the record.
		logger.Info("Payment failed",
			"user_id", req.UserID,
			"payment_ref", req.PaymentRef,
			"amount_cents", req.AmountCents,
		)
		metrics.RecordWebhookEvent(string(event.Type), "logged")
		c.JSON(http.StatusOK, gin.H{"received": true})

	case KindActivate:
		rec, outcome, err := h.activateWithRetry(c.Request.Context(), req)
		if err != nil {
			// Signal failure so the provider redelivers; the duplicate check
			// makes the redelivery safe.
			logger.Errorf("Failed to apply %s event %s for user %d: %v", event.Type, event.ID, req.UserID, err)
			metrics.RecordWebhookEvent(string(event.Type), "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply payment event"})
			return
		}
		h.reportOutcome(c.Request.Context(), req, rec, outcome)
		metrics.RecordWebhookEvent(string(event.Type), string(outcome))
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

type ConfirmRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,gt=0"`
}

type ConfirmResponse struct {
	Subscription *Record `json:"subscription"`
	Outcome      Outcome `json:"outcome"`
}

// Confirm godoc
// @Summary      Confirm a checkout
// @Description  Client-side confirmation fired right after the checkout redirect. Advisory: activates optimistically, the webhook reconciles later.
// @Tags         subscription
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request body ConfirmRequest true "Amount the client saw at checkout"
// @Success      200 {object} ConfirmResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Failure      500 {object} api.ErrorResponse
// @Router       /subscription/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	email, _ := auth.GetUserEmail(c)

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
		return
	}

	// The client path has no gateway payment reference, so it mints its own.
	// The engine's checkout-matching rule keeps it from double-extending the
	// term when the webhook arrives with the canonical reference.
	treq := TransitionRequest{
		Kind:          KindActivate,
		UserID:        userID,
		FallbackEmail: email,
		PaymentRef:    "client-" + uuid.NewString(),
		AmountCents:   req.AmountCents,
		ObservedAt:    time.Now().UTC(),
		Source:        SourceClient,
	}

	rec, outcome, err := h.activateWithRetry(c.Request.Context(), treq)
	if err != nil {
		logger.Errorf("Client confirmation failed for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm subscription, please retry"})
		return
	}

	h.reportOutcome(c.Request.Context(), treq, rec, outcome)
	c.JSON(http.StatusOK, ConfirmResponse{Subscription: rec, Outcome: outcome})
}

// GetMine godoc
// @Summary      Current subscription
// @Tags         subscription
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Record
// @Failure      404 {object} api.ErrorResponse
// @Router       /subscription [get]
func (h *Handler) GetMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rec, err := h.store.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscription"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// CheckAccess godoc
// @Summary      Access decision for the current user
// @Description  Route guards call this on every access-controlled page.
// @Tags         subscription
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} Decision
// @Failure      401 {object} api.ErrorResponse
// @Router       /subscription/access [get]
func (h *Handler) CheckAccess(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	email, _ := auth.GetUserEmail(c)

	rec, err := h.store.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}

	decision := h.gate.Check(rec, Identity{UserID: userID, Email: email})
	metrics.RecordAccessCheck(decision.Allowed)
	c.JSON(http.StatusOK, decision)
}

func (h *Handler) activateWithRetry(parent context.Context, req TransitionRequest) (*Record, Outcome, error) {
	var (
		rec     *Record
		outcome Outcome
		err     error
	)
	for attempt := 1; attempt <= storeRetries; attempt++ {
		ctx, cancel := context.WithTimeout(parent, storeTimeout)
		rec, outcome, err = h.engine.Activate(ctx, req)
		cancel()
		if err == nil {
			return rec, outcome, nil
		}
		if parent.Err() != nil {
			return nil, "", err
		}
		if attempt < storeRetries {
			time.Sleep(time.Duration(attempt) * storeRetryDelay)
		}
	}
	return nil, "", err
}

func (h *Handler) reportOutcome(ctx context.Context, req TransitionRequest, rec *Record, outcome Outcome) {
	switch outcome {
	case OutcomeApplied:
		logger.Info("Subscription activated",
			"user_id", rec.UserID,
			"plan", rec.Plan,
			"payment_ref", req.PaymentRef,
			"source", req.Source,
		)
		metrics.RecordActivation(string(rec.Plan), string(req.Source))
		h.sendReceipt(ctx, rec)
	case OutcomeRefreshed:
		logger.Info("Subscription refreshed",
			"user_id", rec.UserID,
			"payment_ref", req.PaymentRef,
			"source", req.Source,
		)
	case OutcomeDuplicate:
		logger.Debugf("Duplicate activation for user %d (ref %s)", req.UserID, req.PaymentRef)
		metrics.RecordDuplicateTransition()
	}
}

func (h *Handler) sendReceipt(ctx context.Context, rec *Record) {
	if h.mailer == nil || rec.Email == "" {
		return
	}

	body := fmt.Sprintf(
		"Your %s subscription is active until %s. Amount charged: %d.%02d.",
		rec.Plan,
		rec.SubscriptionEnd.Format("January 2, 2006"),
		rec.LastPaymentCents/100, rec.LastPaymentCents%100,
	)
	if err := h.mailer.Send(ctx, rec.Email, rec.Email, "Subscription confirmed", body); err != nil {
		logger.Errorf("Failed to queue receipt email for user %d: %v", rec.UserID, err)
	}
}
