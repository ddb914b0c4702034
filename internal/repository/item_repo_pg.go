package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ItemRepository reads listings owned by the marketplace. The engine only
// writes availability and optimized prices.
type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	ListPeers(ctx context.Context, category, location string) ([]domain.Item, error)
	ListAutoOptimized(ctx context.Context) ([]domain.Item, error)
	SaveOptimizedPrice(ctx context.Context, itemID, purpose string, price int64) error
	Reserve(ctx context.Context, itemID string) error
	Release(ctx context.Context, itemID string) error
}

const itemColumns = `id, owner_id, category, district, mandal, location, purposes, auto_price_optimization, available, created_at, updated_at`

type PGItemRepository struct {
	db       *pgxpool.Pool
	attempts int
}

func NewItemRepository(db *pgxpool.Pool, retryAttempts int) *PGItemRepository {
	if retryAttempts <= 0 {
		retryAttempts = defaultRetryAttempts
	}
	return &PGItemRepository{db: db, attempts: retryAttempts}
}

func (r *PGItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	item, err := retry(ctx, r.attempts, func() (*domain.Item, error) {
		return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return item, err
}

func (r *PGItemRepository) ListPeers(ctx context.Context, category, location string) ([]domain.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE lower(category)=lower($1) AND lower(location)=lower($2) ORDER BY id`, category, location)
}

func (r *PGItemRepository) ListAutoOptimized(ctx context.Context) ([]domain.Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE auto_price_optimization ORDER BY id`)
}

func (r *PGItemRepository) list(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	return retry(ctx, r.attempts, func() ([]domain.Item, error) {
		rows, err := r.db.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		items := make([]domain.Item, 0)
		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				return nil, err
			}
			items = append(items, *item)
		}
		return items, rows.Err()
	})
}

// SaveOptimizedPrice rewrites one purpose inside the purposes document under a row lock.
func (r *PGItemRepository) SaveOptimizedPrice(ctx context.Context, itemID, purpose string, price int64) error {
	return retryExec(ctx, r.attempts, func() error {
		tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var purposes []domain.Purpose
		if err := tx.QueryRow(ctx, `SELECT purposes FROM items WHERE id=$1 FOR UPDATE`, itemID).Scan(&purposes); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
			}
			return err
		}

		found := false
		for i := range purposes {
			if purposes[i].Name == purpose {
				p := price
				purposes[i].OptimizedPrice = &p
				found = true
			}
		}
		if !found {
			return fmt.Errorf("purpose %q of item %s: %w", purpose, itemID, domain.ErrNotFound)
		}

		if _, err := tx.Exec(ctx, `UPDATE items SET purposes=$2, updated_at=now() WHERE id=$1`, itemID, purposes); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

func (r *PGItemRepository) Reserve(ctx context.Context, itemID string) error {
	return r.setAvailable(ctx, itemID, false)
}

// Release marks the item available again only when no booking still holds it.
func (r *PGItemRepository) Release(ctx context.Context, itemID string) error {
	holding := make([]string, len(domain.ItemHoldingStatuses))
	for i, st := range domain.ItemHoldingStatuses {
		holding[i] = string(st)
	}
	return retryExec(ctx, r.attempts, func() error {
		res, err := r.db.Exec(ctx, `
			UPDATE items SET
				available = NOT EXISTS (
					SELECT 1 FROM bookings WHERE item_id=$1 AND status = ANY($2)
				),
				updated_at = now()
			WHERE id=$1`, itemID, holding)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil
	})
}

func (r *PGItemRepository) setAvailable(ctx context.Context, itemID string, available bool) error {
	return retryExec(ctx, r.attempts, func() error {
		res, err := r.db.Exec(ctx, `UPDATE items SET available=$2, updated_at=now() WHERE id=$1`, itemID, available)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
		}
		return nil
	})
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Category, &item.District, &item.Mandal, &item.Location,
		&item.Purposes, &item.AutoPriceOptimization, &item.Available, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

var _ ItemRepository = (*PGItemRepository)(nil)
