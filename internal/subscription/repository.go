package subscription

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const recordColumns = `user_id, email, status, plan, last_applied_payment_ref,
	       subscription_start, subscription_end, last_payment_date,
	       last_payment_cents, external_customer_ref, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the user's record, or nil when none exists yet. Records are
// created lazily by Mutate on the first applied transition.
func (r *Repository) Get(ctx context.Context, userID int) (*Record, error) {
	rec := &Record{}
	err := r.db.GetContext(ctx, rec, `
		SELECT `+recordColumns+`
		FROM subscription_records
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Mutate implements the read-modify-write cycle on one user's row inside a
// transaction with SELECT ... FOR UPDATE, so concurrent writers for the same
// user serialize at the database.
func (r *Repository) Mutate(ctx context.Context, userID int, fn func(current *Record) (*Record, error)) (*Record, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current := &Record{}
	err = tx.QueryRowxContext(ctx, `
		SELECT `+recordColumns+`
		FROM subscription_records
		WHERE user_id = $1
		FOR UPDATE
	`, userID).StructScan(current)
	if errors.Is(err, sql.ErrNoRows) {
		current = nil
	} else if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return current, nil
	}

	stored := &Record{}
	if current == nil {
		err = tx.QueryRowxContext(ctx, `
			INSERT INTO subscription_records
				(user_id, email, status, plan, last_applied_payment_ref,
				 subscription_start, subscription_end, last_payment_date,
				 last_payment_cents, external_customer_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+recordColumns+`
		`, next.UserID, next.Email, next.Status, next.Plan, next.LastAppliedPaymentRef,
			next.SubscriptionStart, next.SubscriptionEnd, next.LastPaymentDate,
			next.LastPaymentCents, next.ExternalCustomerRef).StructScan(stored)
	} else {
		err = tx.QueryRowxContext(ctx, `
			UPDATE subscription_records
			SET email = $2,
			    status = $3,
			    plan = $4,
			    last_applied_payment_ref = $5,
			    subscription_start = $6,
			    subscription_end = $7,
			    last_payment_date = $8,
			    last_payment_cents = $9,
			    external_customer_ref = $10,
			    updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+recordColumns+`
		`, next.UserID, next.Email, next.Status, next.Plan, next.LastAppliedPaymentRef,
			next.SubscriptionStart, next.SubscriptionEnd, next.LastPaymentDate,
			next.LastPaymentCents, next.ExternalCustomerRef).StructScan(stored)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}
