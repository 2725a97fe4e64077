package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

func TestEmployeeGetByID(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmployeeRepository(db.DB, zap.NewNop())

	mgrID := "mgr-1"
	seedEmployee(t, db, "mgr-1", nil, models.RoleManager)
	seedEmployee(t, db, "emp-1", &mgrID, models.RoleEmployee)

	emp, err := repo.GetByID(nil, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "hr-emp-1", emp.HRIdentifier)
	require.NotNil(t, emp.ManagerID)
	assert.Equal(t, "mgr-1", *emp.ManagerID)

	_, err = repo.GetByID(nil, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

// GetByID must run on the transaction's connection when one is open; with
// a single-connection pool a pool query would wait forever on the
// connection the transaction holds.
func TestEmployeeGetByIDInsideTransaction(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmployeeRepository(db.DB, zap.NewNop())
	seedEmployee(t, db, "emp-1", nil, models.RoleEmployee)

	err := db.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		emp, err := repo.GetByID(tx, "emp-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "emp-1", emp.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestListDirectReports(t *testing.T) {
	db := newTestDB(t)
	repo := NewEmployeeRepository(db.DB, zap.NewNop())

	mgrID := "mgr-1"
	seedEmployee(t, db, "mgr-1", nil, models.RoleManager)
	seedEmployee(t, db, "emp-1", &mgrID, models.RoleEmployee)
	seedEmployee(t, db, "emp-2", &mgrID, models.RoleEmployee)
	seedEmployee(t, db, "emp-3", nil, models.RoleEmployee)

	ids, err := repo.ListDirectReports("mgr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1", "emp-2"}, ids)
}
