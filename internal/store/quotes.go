package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

// GetQuoteForAgent loads a quote with its customer and items. A quote owned by
// another agent is reported as ErrNotFound.
func (s *Store) GetQuoteForAgent(ctx context.Context, quoteID int64, agentID uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := s.db.GetContext(ctx, &quote,
		`SELECT id, status, customer_id, agent_id, trip_start, trip_end, currency, created_at, updated_at
		 FROM quotes WHERE id = $1 AND agent_id = $2`, quoteID, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quote %d: %w", quoteID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var customer models.Customer
	err = s.db.GetContext(ctx, &customer,
		"SELECT id, first_name, last_name, email, phone, created_at FROM customers WHERE id = $1",
		quote.CustomerID)
	switch {
	case err == nil:
		quote.Customer = &customer
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to load customer %d: %w", quote.CustomerID, err)
	}

	if err := s.db.SelectContext(ctx, &quote.Items,
		`SELECT id, quote_id, item_type, name, cost, quantity, details, created_at
		 FROM quote_items WHERE quote_id = $1 ORDER BY id`, quoteID); err != nil {
		return nil, fmt.Errorf("failed to load quote items: %w", err)
	}

	return &quote, nil
}

// MarkQuoteConverted sets the quote status to Converted
func (s *Store) MarkQuoteConverted(ctx context.Context, quoteID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE quotes SET status = $1, updated_at = NOW() WHERE id = $2",
		models.QuoteStatusConverted, quoteID)
	return err
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.GetContext(ctx, &customer,
		"SELECT id, first_name, last_name, email, phone, created_at FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
