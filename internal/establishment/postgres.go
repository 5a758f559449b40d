package establishment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

type postgresDirectory struct {
	db *sqlx.DB
}

func NewPostgresDirectory(db *sqlx.DB) Directory {
	return &postgresDirectory{db: db}
}

func (d *postgresDirectory) Get(ctx context.Context, id string) (*Establishment, error) {
	var e Establishment
	err := d.db.GetContext(ctx, &e, `SELECT id, city_id, name, lat, lon FROM establishments WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("directory: failed to get establishment %s: %w", id, err)
	}
	return &e, nil
}

func (d *postgresDirectory) CityExists(ctx context.Context, cityID string) (bool, error) {
	var exists bool
	err := d.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM establishments WHERE city_id = $1)`, cityID)
	if err != nil {
		return false, fmt.Errorf("directory: failed to check city %s: %w", cityID, err)
	}
	return exists, nil
}

func (d *postgresDirectory) ListByCity(ctx context.Context, cityID string) ([]Establishment, error) {
	establishments := make([]Establishment, 0)
	err := d.db.SelectContext(ctx, &establishments,
		`SELECT id, city_id, name, lat, lon FROM establishments WHERE city_id = $1 ORDER BY name, id`, cityID)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to list establishments of city %s: %w", cityID, err)
	}
	return establishments, nil
}

type menuRow struct {
	ProductID string  `db:"product_id"`
	Price     float64 `db:"price"`
}

func (d *postgresDirectory) MenuPrices(ctx context.Context, establishmentID string, productIDs []string) (map[string]float64, error) {
	if len(productIDs) == 0 {
		return map[string]float64{}, nil
	}

	query, args, err := sqlx.In(
		`SELECT product_id, price FROM menu_items WHERE establishment_id = ? AND product_id IN (?)`,
		establishmentID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to build menu query: %w", err)
	}

	var rows []menuRow
	if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("directory: failed to load menu of %s: %w", establishmentID, err)
	}

	prices := make(map[string]float64, len(rows))
	for _, row := range rows {
		prices[row.ProductID] = row.Price
	}
	return prices, missingProducts(prices, productIDs)
}

func missingProducts(prices map[string]float64, productIDs []string) error {
	var missing []string
	for _, id := range productIDs {
		if _, ok := prices[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrUnknownProducts, strings.Join(missing, ", "))
}
