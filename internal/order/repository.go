package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrderID      = errors.New("order with this ID already exists")
	ErrEstablishmentNotFound = errors.New("establishment not found")
	ErrAnchorNotAssigned     = errors.New("order anchor is not assigned")
	ErrAnchorAfterCreation   = errors.New("order anchor is later than its creation time")
	ErrUnsupportedScope      = errors.New("unsupported scope kind")
)

// Repository is the order store the circle engine reads from and the
// submission flow writes to.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetOrdersSince returns the orders of scope whose anchor is at or
	// after since, oldest created first.
	GetOrdersSince(ctx context.Context, scope Scope, since float64) ([]Order, error)
	GetOrdersForEstablishment(ctx context.Context, establishmentID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// prepareForCreate assigns an ID when missing and checks the anchor invariants.
func prepareForCreate(o *Order) error {
	if o.Anchor == 0 {
		return ErrAnchorNotAssigned
	}
	if o.Anchor > o.CreatedAt {
		return fmt.Errorf("%w: anchor=%f created_at=%f", ErrAnchorAfterCreation, o.Anchor, o.CreatedAt)
	}
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	return nil
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, establishment_id, city_id, user_id, lat, lon, items, total, status, anchor, created_at`

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if err := prepareForCreate(o); err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		o.ID,
		o.EstablishmentID,
		o.CityID,
		o.UserID,
		o.Lat,
		o.Lon,
		o.Items,
		o.Total,
		string(o.Status),
		o.Anchor,
		o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrDuplicateOrderID
			case pgerrcode.ForeignKeyViolation:
				return fmt.Errorf("%w: %s", ErrEstablishmentNotFound, o.EstablishmentID)
			}
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return o, nil
}

func (r *postgresRepository) GetOrdersSince(ctx context.Context, scope Scope, since float64) ([]Order, error) {
	var column string
	switch scope.Kind {
	case ScopeEstablishment:
		column = "establishment_id"
	case ScopeCity:
		column = "city_id"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScope, scope.Kind)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ` + column + ` = $1 AND anchor >= $2
		ORDER BY created_at ASC, seq ASC
	`
	return r.queryOrders(ctx, query, scope.ID, since)
}

func (r *postgresRepository) GetOrdersForEstablishment(ctx context.Context, establishmentID string) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE establishment_id = $1
		ORDER BY anchor ASC, created_at ASC, seq ASC
	`
	return r.queryOrders(ctx, query, establishmentID)
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", status).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", id, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *postgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var status string
	err := row.Scan(
		&o.ID,
		&o.EstablishmentID,
		&o.CityID,
		&o.UserID,
		&o.Lat,
		&o.Lon,
		&o.Items,
		&o.Total,
		&status,
		&o.Anchor,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	return &o, nil
}
