package orders

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/ticketing-core/internal/events"
	"github.com/robertarktes/ticketing-core/internal/store"
)

// PostgresRepository keeps orders in a JSONB entity table and expresses the
// reservation query against the document column.
type PostgresRepository struct {
	*store.Postgres[Order, *Order]
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Postgres: store.NewPostgres[Order, *Order](pool, "orders")}
}

func (r *PostgresRepository) ActiveOrderForTicket(ctx context.Context, ticketID string) (*Order, error) {
	var id string
	err := r.Pool().QueryRow(ctx, `
		SELECT id FROM orders
		WHERE data->'ticket'->>'id' = $1 AND data->>'status' != $2
		LIMIT 1
	`, ticketID, string(events.OrderCancelled)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// MemoryRepository backs the unit tests with the same contract.
type MemoryRepository struct {
	*store.Memory[Order, *Order]
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{Memory: store.NewMemory[Order, *Order]()}
}

func (r *MemoryRepository) ActiveOrderForTicket(ctx context.Context, ticketID string) (*Order, error) {
	for _, o := range r.List(ctx) {
		if o.Ticket.ID == ticketID && o.Status != events.OrderCancelled {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}
