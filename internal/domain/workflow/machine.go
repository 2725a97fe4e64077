package workflow

import (
	"fmt"

	"github.com/finchly/expenseflow/internal/models"
)

// Machine is the report lifecycle state machine. The transition table is
// fixed at construction; Next is a total function over (state, trigger)
// pairs, so an illegal edge is always a structured ErrInvalidTransition
// rather than a runtime string comparison bug.
//
// Guards that need request context (ownership, roles, policy results) are
// evaluated by the caller before firing; the machine only answers whether
// the edge exists and where it leads.
type Machine struct {
	transitions map[models.ReportStatus]map[Trigger]models.ReportStatus
}

// NewMachine builds the machine with the full report transition table:
//
//	draft            --SUBMIT-->                submitted
//	submitted        --MANAGER_APPROVE-->       manager_approved
//	submitted        --MANAGER_NEEDS_CHANGES--> needs_changes
//	submitted        --MANAGER_DENY-->          denied
//	needs_changes    --RESUBMIT-->              submitted
//	manager_approved --FINANCE_FINALIZE-->      finance_finalized
//	manager_approved --FINANCE_REJECT-->        needs_changes
func NewMachine() *Machine {
	m := &Machine{
		transitions: make(map[models.ReportStatus]map[Trigger]models.ReportStatus),
	}

	m.permit(models.StatusDraft, TriggerSubmit, models.StatusSubmitted)
	m.permit(models.StatusSubmitted, TriggerManagerApprove, models.StatusManagerApproved)
	m.permit(models.StatusSubmitted, TriggerManagerNeedsChanges, models.StatusNeedsChanges)
	m.permit(models.StatusSubmitted, TriggerManagerDeny, models.StatusDenied)
	m.permit(models.StatusNeedsChanges, TriggerResubmit, models.StatusSubmitted)
	m.permit(models.StatusManagerApproved, TriggerFinanceFinalize, models.StatusFinanceFinalized)
	m.permit(models.StatusManagerApproved, TriggerFinanceReject, models.StatusNeedsChanges)

	return m
}

// permit registers an edge in the transition table
func (m *Machine) permit(from models.ReportStatus, trigger Trigger, to models.ReportStatus) {
	if !from.IsValid() {
		panic(fmt.Sprintf("invalid source state: %s", from))
	}
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	edges, ok := m.transitions[from]
	if !ok {
		edges = make(map[Trigger]models.ReportStatus)
		m.transitions[from] = edges
	}
	edges[trigger] = to
}

// Next returns the state reached by firing trigger from the given state.
// A missing edge returns ErrInvalidTransition wrapped with both endpoints.
func (m *Machine) Next(from models.ReportStatus, trigger Trigger) (models.ReportStatus, error) {
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, from)
	}
	edges, ok := m.transitions[from]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire %s from terminal state %s", ErrInvalidTransition, trigger, from)
	}
	to, ok := edges[trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire %s from state %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// CanFire returns true if the trigger has an edge from the given state
func (m *Machine) CanFire(from models.ReportStatus, trigger Trigger) bool {
	_, err := m.Next(from, trigger)
	return err == nil
}

// PermittedTriggers returns all triggers with an edge from the given state
func (m *Machine) PermittedTriggers(from models.ReportStatus) []Trigger {
	edges, ok := m.transitions[from]
	if !ok {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(edges))
	for trigger := range edges {
		triggers = append(triggers, trigger)
	}
	return triggers
}
