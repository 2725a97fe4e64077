package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// PolicyRepository reads policy caps and mileage rates. Rows are versioned
// in time and never updated in place, so historical validations stay
// replayable against the rules that were active at the time.
type PolicyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *sql.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Caps returns every policy cap row. Date filtering is the validator's job;
// the full rule set is small enough to load per validation.
func (r *PolicyRepository) Caps() ([]*models.PolicyCap, error) {
	query := `
		SELECT id, policy_key, category, limit_type, amount_cents, notes, active_from, active_to
		FROM policy_caps
		ORDER BY active_from ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list policy caps", zap.Error(err))
		return nil, fmt.Errorf("failed to list policy caps: %w", err)
	}
	defer rows.Close()

	var caps []*models.PolicyCap
	for rows.Next() {
		var pc models.PolicyCap
		var notes sql.NullString
		err := rows.Scan(
			&pc.ID,
			&pc.PolicyKey,
			&pc.Category,
			&pc.LimitType,
			&pc.AmountCents,
			&notes,
			&pc.ActiveFrom,
			&pc.ActiveTo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy cap: %w", err)
		}
		pc.Notes = notes.String
		caps = append(caps, &pc)
	}
	return caps, rows.Err()
}

// CreateCap inserts a new policy cap row
func (r *PolicyRepository) CreateCap(pc *models.PolicyCap) error {
	query := `
		INSERT INTO policy_caps (id, policy_key, category, limit_type, amount_cents, notes, active_from, active_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		pc.ID,
		pc.PolicyKey,
		pc.Category,
		pc.LimitType,
		pc.AmountCents,
		pc.Notes,
		pc.ActiveFrom,
		pc.ActiveTo,
	)
	if err != nil {
		r.logger.Error("Failed to create policy cap", zap.String("policy_key", pc.PolicyKey), zap.Error(err))
		return fmt.Errorf("failed to create policy cap: %w", err)
	}
	return nil
}

// MileageRates returns all mileage rates ordered by effective date
func (r *PolicyRepository) MileageRates() ([]*models.MileageRate, error) {
	query := `SELECT effective_date, rate_cents_per_mile FROM mileage_rates ORDER BY effective_date ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list mileage rates", zap.Error(err))
		return nil, fmt.Errorf("failed to list mileage rates: %w", err)
	}
	defer rows.Close()

	var rates []*models.MileageRate
	for rows.Next() {
		var rate models.MileageRate
		if err := rows.Scan(&rate.EffectiveDate, &rate.RateCentsPerMile); err != nil {
			return nil, fmt.Errorf("failed to scan mileage rate: %w", err)
		}
		rates = append(rates, &rate)
	}
	return rates, rows.Err()
}

// CreateMileageRate inserts a new mileage rate
func (r *PolicyRepository) CreateMileageRate(rate *models.MileageRate) error {
	_, err := r.db.Exec(
		`INSERT INTO mileage_rates (effective_date, rate_cents_per_mile) VALUES (?, ?)`,
		rate.EffectiveDate,
		rate.RateCentsPerMile,
	)
	if err != nil {
		r.logger.Error("Failed to create mileage rate", zap.Error(err))
		return fmt.Errorf("failed to create mileage rate: %w", err)
	}
	return nil
}
