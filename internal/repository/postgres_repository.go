package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/sandbeige/storefront/internal/domain"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// ErrQuantityConstraint is returned when a write would leave a row below quantity 1.
var ErrQuantityConstraint = errors.New("cart row quantity constraint violated")

const rowColumns = `item_id, product_id, variant, quantity, unit_price, product_name, product_image, current_price, added_at`

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) CartRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Migrate(context.Context) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "cart_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (domain.LineItem, error) {
	var item domain.LineItem
	err := s.Scan(
		&item.ID,
		&item.ProductID,
		&item.Variant,
		&item.Quantity,
		&item.UnitPrice,
		&item.Snapshot.Name,
		&item.Snapshot.Image,
		&item.Snapshot.CurrentPrice,
		&item.AddedAt,
	)
	item.AddedAt = item.AddedAt.UTC()
	return item, err
}

func (r *postgresRepository) List(ctx context.Context, userID string) ([]domain.LineItem, error) {
	query := `SELECT ` + rowColumns + `
	          FROM cart_items
	          WHERE user_id = $1
	          ORDER BY added_at, product_id, variant`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart rows: %w", err)
	}
	defer rows.Close()

	items := []domain.LineItem{}
	for rows.Next() {
		item, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) Increment(ctx context.Context, userID string, item domain.LineItem, delta int) (domain.LineItem, error) {
	item.Quantity = delta
	return r.upsert(ctx, userID, item, `cart_items.quantity + EXCLUDED.quantity`)
}

func (r *postgresRepository) Set(ctx context.Context, userID string, item domain.LineItem) (domain.LineItem, error) {
	return r.upsert(ctx, userID, item, `EXCLUDED.quantity`)
}

func (r *postgresRepository) upsert(ctx context.Context, userID string, item domain.LineItem, quantityExpr string) (domain.LineItem, error) {
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}

	query := `INSERT INTO cart_items (user_id, item_id, product_id, variant, quantity, unit_price, product_name, product_image, current_price, added_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	          ON CONFLICT (user_id, product_id, variant)
	          DO UPDATE SET quantity = ` + quantityExpr + `, updated_at = NOW()
	          RETURNING ` + rowColumns

	row := r.db.QueryRowContext(ctx, query,
		userID,
		item.ID,
		item.ProductID,
		item.Variant,
		item.Quantity,
		item.UnitPrice,
		item.Snapshot.Name,
		item.Snapshot.Image,
		item.Snapshot.CurrentPrice,
		addedAt,
	)

	stored, err := scanRow(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return domain.LineItem{}, ErrQuantityConstraint
		}
		return domain.LineItem{}, fmt.Errorf("upsert cart row: %w", err)
	}
	return stored, nil
}

func (r *postgresRepository) Remove(ctx context.Context, userID string, key domain.Key) error {
	query := `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2 AND variant = $3`
	if _, err := r.db.ExecContext(ctx, query, userID, key.ProductID, key.Variant); err != nil {
		return fmt.Errorf("remove cart row: %w", err)
	}
	return nil
}

func (r *postgresRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
