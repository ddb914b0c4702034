package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PricingRuleRepository interface {
	List(ctx context.Context) ([]domain.PricingRule, error)
	ListActive(ctx context.Context) ([]domain.PricingRule, error)
	GetByID(ctx context.Context, id string) (*domain.PricingRule, error)
	Create(ctx context.Context, rule *domain.PricingRule) error
	Update(ctx context.Context, rule *domain.PricingRule) error
	Delete(ctx context.Context, id string) error
}

const ruleColumns = `id, district, mandal, category, multiplier, active, created_at, updated_at`

type PGPricingRuleRepository struct {
	db       *pgxpool.Pool
	attempts int
}

func NewPricingRuleRepository(db *pgxpool.Pool, retryAttempts int) *PGPricingRuleRepository {
	if retryAttempts <= 0 {
		retryAttempts = defaultRetryAttempts
	}
	return &PGPricingRuleRepository{db: db, attempts: retryAttempts}
}

func (r *PGPricingRuleRepository) List(ctx context.Context) ([]domain.PricingRule, error) {
	return r.list(ctx, `SELECT `+ruleColumns+` FROM pricing_rules ORDER BY district, mandal, category, id`)
}

func (r *PGPricingRuleRepository) ListActive(ctx context.Context) ([]domain.PricingRule, error) {
	return r.list(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE active ORDER BY id`)
}

func (r *PGPricingRuleRepository) list(ctx context.Context, query string) ([]domain.PricingRule, error) {
	return retry(ctx, r.attempts, func() ([]domain.PricingRule, error) {
		rows, err := r.db.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		rules := make([]domain.PricingRule, 0)
		for rows.Next() {
			rule, err := scanRule(rows)
			if err != nil {
				return nil, err
			}
			rules = append(rules, *rule)
		}
		return rules, rows.Err()
	})
}

func (r *PGPricingRuleRepository) GetByID(ctx context.Context, id string) (*domain.PricingRule, error) {
	rule, err := retry(ctx, r.attempts, func() (*domain.PricingRule, error) {
		return scanRule(r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM pricing_rules WHERE id=$1`, id))
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pricing rule %s: %w", id, domain.ErrNotFound)
	}
	return rule, err
}

func (r *PGPricingRuleRepository) Create(ctx context.Context, rule *domain.PricingRule) error {
	return retryExec(ctx, r.attempts, func() error {
		return r.db.QueryRow(ctx, `INSERT INTO pricing_rules (id, district, mandal, category, multiplier, active)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at`,
			rule.ID, rule.District, rule.Mandal, rule.Category, rule.Multiplier, rule.Active).
			Scan(&rule.CreatedAt, &rule.UpdatedAt)
	})
}

func (r *PGPricingRuleRepository) Update(ctx context.Context, rule *domain.PricingRule) error {
	err := retryExec(ctx, r.attempts, func() error {
		return r.db.QueryRow(ctx, `UPDATE pricing_rules
			SET district=$2, mandal=$3, category=$4, multiplier=$5, active=$6, updated_at=now()
			WHERE id=$1
			RETURNING created_at, updated_at`,
			rule.ID, rule.District, rule.Mandal, rule.Category, rule.Multiplier, rule.Active).
			Scan(&rule.CreatedAt, &rule.UpdatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pricing rule %s: %w", rule.ID, domain.ErrNotFound)
	}
	return err
}

func (r *PGPricingRuleRepository) Delete(ctx context.Context, id string) error {
	return retryExec(ctx, r.attempts, func() error {
		res, err := r.db.Exec(ctx, `DELETE FROM pricing_rules WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("pricing rule %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

func scanRule(row pgx.Row) (*domain.PricingRule, error) {
	var rule domain.PricingRule
	if err := row.Scan(&rule.ID, &rule.District, &rule.Mandal, &rule.Category, &rule.Multiplier,
		&rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	return &rule, nil
}

var _ PricingRuleRepository = (*PGPricingRuleRepository)(nil)
