package domain

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full lifecycle table. delivered and cancelled are
// terminal. Authorization of who may request a transition is a caller-side
// policy, not part of the machine.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

type InvalidTransitionError struct {
	Current Status
	Next    Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("invalid order status transition %q -> %q: %q is terminal", e.Current, e.Next, e.Current)
	}
	return fmt.Sprintf("invalid order status transition %q -> %q (allowed: %s)", e.Current, e.Next, strings.Join(allowed, ", "))
}

// ValidateTransition fails with an InvalidTransitionError naming the allowed
// set when next is not reachable from current.
func ValidateTransition(current, next Status) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown order status %q", current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return &InvalidTransitionError{Current: current, Next: next, Allowed: allowed}
}
