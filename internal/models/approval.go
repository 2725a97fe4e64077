package models

import "time"

// Role is the caller role carried by the authentication claim
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleFinance  Role = "finance"
	RoleAdmin    Role = "admin"
)

var validRoles = map[Role]bool{
	RoleEmployee: true,
	RoleManager:  true,
	RoleFinance:  true,
	RoleAdmin:    true,
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// Employee is the directory reference consulted for ownership and
// manager-over-owner guards. Directory CRUD itself lives elsewhere.
type Employee struct {
	ID           string    `json:"id"`
	HRIdentifier string    `json:"hr_identifier"`
	ManagerID    *string   `json:"manager_id,omitempty"`
	Department   string    `json:"department,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Decision is the outcome recorded for a single approval event
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionDenied       Decision = "denied"
	DecisionNeedsChanges Decision = "needs_changes"
)

var validDecisions = map[Decision]bool{
	DecisionApproved:     true,
	DecisionDenied:       true,
	DecisionNeedsChanges: true,
}

// IsValid returns true if the decision is known
func (d Decision) IsValid() bool {
	return validDecisions[d]
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}

// Approval records one decision event on a report. OverrideJustification is
// required when the decision overrides an item flagged as a policy exception.
type Approval struct {
	ID                    string    `json:"id"`
	ReportID              string    `json:"report_id"`
	ApproverID            string    `json:"approver_id"`
	Role                  Role      `json:"role"`
	Decision              Decision  `json:"decision"`
	Comments              string    `json:"comments,omitempty"`
	OverrideJustification string    `json:"override_justification,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}
