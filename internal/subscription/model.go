package subscription

import "time"

type Status string
type Plan string

const (
	StatusInactive  Status = "inactive"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"

	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
	PlanAdmin   Plan = "admin"
)

// PremiumThresholdCents is the minor-unit amount at which a payment buys the
// premium tier instead of basic.
const PremiumThresholdCents int64 = 900

// Record is the single mutable "current subscription" projection kept per
// user. Both the webhook path and the client confirmation path converge onto
// this one row.
type Record struct {
	UserID                int        `db:"user_id" json:"user_id"`
	Email                 string     `db:"email" json:"email"`
	Status                Status     `db:"status" json:"status"`
	Plan                  Plan       `db:"plan" json:"plan"`
	LastAppliedPaymentRef string     `db:"last_applied_payment_ref" json:"last_applied_payment_ref,omitempty"`
	SubscriptionStart     *time.Time `db:"subscription_start" json:"subscription_start,omitempty"`
	SubscriptionEnd       *time.Time `db:"subscription_end" json:"subscription_end,omitempty"`
	LastPaymentDate       *time.Time `db:"last_payment_date" json:"last_payment_date,omitempty"`
	LastPaymentCents      int64      `db:"last_payment_cents" json:"last_payment_cents"`
	ExternalCustomerRef   string     `db:"external_customer_ref" json:"external_customer_ref,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// PlanForAmount derives the plan tier from the paid amount. Admin and free
// are never derived from a payment.
func PlanForAmount(amountCents int64) Plan {
	if amountCents >= PremiumThresholdCents {
		return PlanPremium
	}
	return PlanBasic
}

type TransitionKind string

const (
	KindActivate   TransitionKind = "activate"
	KindMarkFailed TransitionKind = "mark_failed"
	KindIgnore     TransitionKind = "ignore"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourceClient  Source = "client"
)

// TransitionRequest is a normalized request to move a user's record, produced
// either by the event dispatcher or by the client confirmation handler.
type TransitionRequest struct {
	Kind                TransitionKind
	UserID              int
	Email               string
	FallbackEmail       string
	PaymentRef          string
	AmountCents         int64
	ExternalCustomerRef string
	ObservedAt          time.Time
	Source              Source
}
