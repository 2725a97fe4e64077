package workflow

// Trigger represents an action that can cause a report state transition
type Trigger string

const (
	TriggerSubmit              Trigger = "SUBMIT"
	TriggerManagerApprove      Trigger = "MANAGER_APPROVE"
	TriggerManagerNeedsChanges Trigger = "MANAGER_NEEDS_CHANGES"
	TriggerManagerDeny         Trigger = "MANAGER_DENY"
	TriggerResubmit            Trigger = "RESUBMIT"
	TriggerFinanceFinalize     Trigger = "FINANCE_FINALIZE"
	TriggerFinanceReject       Trigger = "FINANCE_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
