package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classpass/internal/db"
	"classpass/internal/subscription"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	database, err := db.Connect(dbURL)
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(database, "../migrations"))
	return database
}

func cleanTables(t *testing.T, database *sqlx.DB) {
	t.Helper()
	for _, table := range []string{"subscription_records", "users"} {
		_, err := database.Exec("DELETE FROM " + table)
		require.NoError(t, err, "Failed to clean table "+table)
	}
}

func TestReconciliation_TwoWriters_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	database := setupTestDB(t)
	defer database.Close()
	cleanTables(t, database)

	repo := subscription.NewRepository(database)
	engine := subscription.NewEngine(repo)
	ctx := context.Background()

	checkout := time.Now().UTC().Truncate(time.Second)

	// Advisory client confirmation lands first.
	clientReq := subscription.TransitionRequest{
		Kind:          subscription.KindActivate,
		UserID:        1,
		FallbackEmail: "teacher@school.edu",
		PaymentRef:    "client-integration-1",
		AmountCents:   250,
		ObservedAt:    checkout,
		Source:        subscription.SourceClient,
	}
	afterClient, outcome, err := engine.Activate(ctx, clientReq)
	require.NoError(t, err)
	require.Equal(t, subscription.OutcomeApplied, outcome)
	require.Equal(t, subscription.StatusActive, afterClient.Status)

	// The authoritative webhook arrives seconds later with the canonical ref.
	webhookReq := subscription.TransitionRequest{
		Kind:        subscription.KindActivate,
		UserID:      1,
		Email:       "teacher@school.edu",
		PaymentRef:  "pi_integration_1",
		AmountCents: 250,
		ObservedAt:  checkout.Add(4 * time.Second),
		Source:      subscription.SourceWebhook,
	}
	afterWebhook, outcome, err := engine.Activate(ctx, webhookReq)
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeRefreshed, outcome)
	assert.Equal(t, subscription.PlanBasic, afterWebhook.Plan)
	assert.Equal(t, "pi_integration_1", afterWebhook.LastAppliedPaymentRef)
	assert.Equal(t, afterClient.SubscriptionEnd.Unix(), afterWebhook.SubscriptionEnd.Unix())

	// A redelivery of the same webhook is a no-op.
	_, outcome, err = engine.Activate(ctx, webhookReq)
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeDuplicate, outcome)

	stored, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, subscription.StatusActive, stored.Status)

	var count int
	require.NoError(t, database.Get(&count, "SELECT COUNT(*) FROM subscription_records"))
	assert.Equal(t, 1, count)
}

func TestReconciliation_ConcurrentWriters_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	database := setupTestDB(t)
	defer database.Close()
	cleanTables(t, database)

	repo := subscription.NewRepository(database)
	engine := subscription.NewEngine(repo)
	checkout := time.Now().UTC().Truncate(time.Second)

	reqs := []subscription.TransitionRequest{
		{
			Kind: subscription.KindActivate, UserID: 2,
			FallbackEmail: "teacher@school.edu",
			PaymentRef:    "client-concurrent-1", AmountCents: 999,
			ObservedAt: checkout, Source: subscription.SourceClient,
		},
		{
			Kind: subscription.KindActivate, UserID: 2,
			Email:      "teacher@school.edu",
			PaymentRef: "pi_concurrent_1", AmountCents: 999,
			ObservedAt: checkout.Add(2 * time.Second), Source: subscription.SourceWebhook,
		},
	}

	errCh := make(chan error, len(reqs))
	for _, req := range reqs {
		go func(r subscription.TransitionRequest) {
			_, _, err := engine.Activate(context.Background(), r)
			errCh <- err
		}(req)
	}
	for range reqs {
		require.NoError(t, <-errCh)
	}

	stored, err := repo.Get(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, subscription.StatusActive, stored.Status)
	assert.Equal(t, subscription.PlanPremium, stored.Plan)

	// Exactly one term: the end date sits one year after one of the two
	// observation instants, not two.
	earliest := checkout.AddDate(1, 0, 0)
	latest := checkout.Add(2 * time.Second).AddDate(1, 0, 0)
	require.NotNil(t, stored.SubscriptionEnd)
	assert.False(t, stored.SubscriptionEnd.Before(earliest))
	assert.False(t, stored.SubscriptionEnd.After(latest))
}
