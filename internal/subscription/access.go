package subscription

import (
	"strings"
	"time"
)

// Identity is whoever is knocking on an access-controlled page.
type Identity struct {
	UserID int
	Email  string
}

// IdentityPolicy decides whether an identity bypasses the subscription check
// entirely. Evaluated on every check; never cached.
type IdentityPolicy interface {
	IsPrivileged(identity Identity) bool
}

// AdminEmailPolicy grants the privileged short-circuit to a single configured
// administrator email. An empty configuration matches nobody.
type AdminEmailPolicy struct {
	AdminEmail string
}

func (p AdminEmailPolicy) IsPrivileged(identity Identity) bool {
	if p.AdminEmail == "" {
		return false
	}
	return strings.EqualFold(p.AdminEmail, identity.Email)
}

type Decision struct {
	Allowed bool `json:"allowed"`
	Plan    Plan `json:"plan"`
}

// AccessGate is the read-side consumer of the stored record. Expiration is
// enforced here at read time; nothing ever flips an expired record's status.
type AccessGate struct {
	policy IdentityPolicy
	now    func() time.Time
}

func NewAccessGate(policy IdentityPolicy) *AccessGate {
	return &AccessGate{policy: policy, now: time.Now}
}

// Check derives the access decision from the record and the identity. A nil
// record means the user never had an applied transition.
func (g *AccessGate) Check(rec *Record, identity Identity) Decision {
	if g.policy != nil && g.policy.IsPrivileged(identity) {
		return Decision{Allowed: true, Plan: PlanAdmin}
	}

	if rec == nil {
		return Decision{Allowed: false, Plan: PlanFree}
	}
	if rec.Status != StatusActive || rec.SubscriptionEnd == nil {
		return Decision{Allowed: false, Plan: rec.Plan}
	}
	if !g.now().Before(*rec.SubscriptionEnd) {
		return Decision{Allowed: false, Plan: rec.Plan}
	}
	return Decision{Allowed: true, Plan: rec.Plan}
}
