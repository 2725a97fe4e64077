package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
	"github.com/finchly/expenseflow/pkg/database"
)

// newTestDB opens an in-memory database with the full schema applied and
// the seed policy rows cleared so each test controls its own rules.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	_, err = db.Exec(`DELETE FROM policy_caps`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM mileage_rates`)
	require.NoError(t, err)

	return db
}

func seedEmployee(t *testing.T, db *database.DB, id string, managerID *string, role models.Role) {
	t.Helper()
	repo := NewEmployeeRepository(db.DB, zap.NewNop())
	require.NoError(t, repo.Create(&models.Employee{
		ID:           id,
		HRIdentifier: "hr-" + id,
		ManagerID:    managerID,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}))
}

func draftReport(id, employeeID string) *models.ExpenseReport {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	return &models.ExpenseReport{
		ID:          id,
		EmployeeID:  employeeID,
		PeriodStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Currency:    "USD",
		Status:      models.StatusDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
