package workflow

import (
	"errors"
	"fmt"

	"github.com/aimed/aimed/internal/domain/entity"
)

var (
	ErrInvalidTransition   = errors.New("invalid appointment transition")
	ErrForbidden           = errors.New("actor may not perform this transition")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// TransitionError describes a rejected status change. It unwraps to
// ErrInvalidTransition or ErrForbidden.
type TransitionError struct {
	ID    string
	From  entity.AppointmentStatus
	To    entity.AppointmentStatus
	Actor entity.Role
	cause error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment %s: %s -> %s by %s: %v", e.ID, e.From, e.To, e.Actor, e.cause)
}

func (e *TransitionError) Unwrap() error { return e.cause }

type rule struct {
	from   []entity.AppointmentStatus
	actors []entity.Role
}

// transitions is keyed by target status. Creation (to SCHEDULED) is not a
// transition; see Service.Book.
var transitions = map[entity.AppointmentStatus]rule{
	entity.StatusWaiting: {
		from:   []entity.AppointmentStatus{entity.StatusScheduled},
		actors: []entity.Role{entity.RolePatient},
	},
	entity.StatusInProgress: {
		from:   []entity.AppointmentStatus{entity.StatusScheduled, entity.StatusWaiting},
		actors: []entity.Role{entity.RoleDoctor},
	},
	entity.StatusCompleted: {
		from:   []entity.AppointmentStatus{entity.StatusInProgress},
		actors: []entity.Role{entity.RoleDoctor},
	},
	entity.StatusCanceled: {
		from:   []entity.AppointmentStatus{entity.StatusScheduled, entity.StatusWaiting},
		actors: []entity.Role{entity.RolePatient, entity.RoleDoctor},
	},
}

// CheckTransition validates a status change against the lifecycle table.
// A source state that does not match is ErrInvalidTransition; an actor role
// the table does not allow is ErrForbidden.
func CheckTransition(id string, from, to entity.AppointmentStatus, actor entity.Role) error {
	r, ok := transitions[to]
	if !ok || !contains(r.from, from) {
		return &TransitionError{ID: id, From: from, To: to, Actor: actor, cause: ErrInvalidTransition}
	}
	if !contains(r.actors, actor) {
		return &TransitionError{ID: id, From: from, To: to, Actor: actor, cause: ErrForbidden}
	}
	return nil
}

// AllowedTargets lists the statuses actor may move an appointment in from to.
func AllowedTargets(from entity.AppointmentStatus, actor entity.Role) []entity.AppointmentStatus {
	var out []entity.AppointmentStatus
	for _, to := range []entity.AppointmentStatus{
		entity.StatusWaiting, entity.StatusInProgress, entity.StatusCompleted, entity.StatusCanceled,
	} {
		if CheckTransition("", from, to, actor) == nil {
			out = append(out, to)
		}
	}
	return out
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
