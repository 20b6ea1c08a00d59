package workflows

import "fmt"

// StateMachine enforces status transitions of a contract record
type StateMachine struct {
	name               string
	allowedTransitions map[string][]string
}

// NewClaimStateMachine returns the claim lifecycle: voting (Active) ends in Approved or Rejected
func NewClaimStateMachine() *StateMachine {
	return &StateMachine{
		name: "claim",
		allowedTransitions: map[string][]string{
			"Active":   {"Approved", "Rejected"},
			"Approved": {},
			"Rejected": {},
		},
	}
}

// Known reports whether status belongs to this lifecycle
func (sm *StateMachine) Known(status string) bool {
	_, ok := sm.allowedTransitions[status]
	return ok
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	for _, allowedTo := range sm.allowedTransitions[from] {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// Validate returns an error describing a disallowed transition
func (sm *StateMachine) Validate(from, to string) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("invalid %s transition %s -> %s", sm.name, from, to)
	}
	return nil
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// Terminal reports whether no transition leaves status
func (sm *StateMachine) Terminal(status string) bool {
	return sm.Known(status) && len(sm.allowedTransitions[status]) == 0
}
