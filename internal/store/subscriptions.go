package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"
)

const subscriptionColumns = `id, agent_id, tier, status, current_period_start, current_period_end, trial_start,
	trial_end, cancel_at_period_end, external_subscription_id, external_customer_id, created_at, updated_at`

// UpsertSubscription creates or replaces the agent's subscription
func (s *Store) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (agent_id, tier, status, current_period_start, current_period_end,
			trial_start, trial_end, cancel_at_period_end, external_subscription_id, external_customer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (agent_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			external_subscription_id = EXCLUDED.external_subscription_id,
			external_customer_id = EXCLUDED.external_customer_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		sub.AgentID, sub.Tier, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialStart, sub.TrialEnd, sub.CancelAtPeriodEnd, sub.ExternalSubscriptionID, sub.ExternalCustomerID,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
}

// GetSubscriptionByCustomerID finds the subscription for a processor customer
func (s *Store) GetSubscriptionByCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	return s.getSubscription(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE external_customer_id = $1 ORDER BY id DESC LIMIT 1",
		customerID)
}

// GetSubscriptionByExternalID finds a subscription by the processor's id
func (s *Store) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	return s.getSubscription(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE external_subscription_id = $1", externalID)
}

// UpdateSubscriptionStatus sets the status of a subscription by the processor's id
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, externalID, status string) (*models.Subscription, error) {
	return s.getSubscription(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = NOW()
		 WHERE external_subscription_id = $2
		 RETURNING `+subscriptionColumns, status, externalID)
}

func (s *Store) getSubscription(ctx context.Context, query string, args ...interface{}) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
