package service

import "github.com/finchly/expenseflow/internal/models"

// Actor is the authenticated caller identity attached to every operation.
// IPAddress and UserAgent are carried into audit entries.
type Actor struct {
	EmployeeID string
	Role       models.Role
	IPAddress  string
	UserAgent  string
}

// IsAdmin returns true for the admin role
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanActAsManager returns true for roles allowed to record manager decisions
func (a Actor) CanActAsManager() bool {
	return a.Role == models.RoleManager || a.Role == models.RoleAdmin
}

// CanActAsFinance returns true for roles allowed to finalize and export
func (a Actor) CanActAsFinance() bool {
	return a.Role == models.RoleFinance || a.Role == models.RoleAdmin
}
