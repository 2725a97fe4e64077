package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/models"
)

// EmployeeRepository reads the employee directory used for ownership and
// manager-over-owner guards.
type EmployeeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

func (r *EmployeeRepository) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a directory entry. Used by provisioning and tests; the
// lifecycle engine itself never writes the directory.
func (r *EmployeeRepository) Create(employee *models.Employee) error {
	query := `
		INSERT INTO employees (id, hr_identifier, manager_id, department, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		employee.ID,
		employee.HRIdentifier,
		employee.ManagerID,
		employee.Department,
		employee.Role,
		employee.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create employee", zap.String("id", employee.ID), zap.Error(err))
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// GetByID retrieves an employee by ID. Callers already inside a
// transaction must pass it, otherwise the lookup would wait on a pool
// connection the transaction itself may be holding.
func (r *EmployeeRepository) GetByID(tx *sql.Tx, id string) (*models.Employee, error) {
	query := `
		SELECT id, hr_identifier, manager_id, department, role, created_at
		FROM employees WHERE id = ?
	`
	var employee models.Employee
	var department sql.NullString
	err := r.conn(tx).QueryRow(query, id).Scan(
		&employee.ID,
		&employee.HRIdentifier,
		&employee.ManagerID,
		&department,
		&employee.Role,
		&employee.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	employee.Department = department.String
	return &employee, nil
}

// ListDirectReports returns the IDs of employees reporting to the given manager
func (r *EmployeeRepository) ListDirectReports(managerID string) ([]string, error) {
	rows, err := r.db.Query(`SELECT id FROM employees WHERE manager_id = ? ORDER BY id`, managerID)
	if err != nil {
		r.logger.Error("Failed to list direct reports", zap.String("manager_id", managerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list direct reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
