package types

import (
	"errors"
	"fmt"
)

const maxNameLength = 100

var (
	ErrMissingName      = errors.New("name is required")
	ErrNameTooLong      = fmt.Errorf("name exceeds %d characters", maxNameLength)
	ErrMissingTeacherID = errors.New("teacherId is required")
	ErrInvalidRole      = errors.New("role must be teacher or student")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrMissingTarget    = errors.New("target is required")
)

// IsValidRole reports whether role is one of the two declared roles.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// Validate checks a become_available payload before any state mutation.
func (p *BecomeAvailablePayload) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	if len(p.Name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// Validate checks a request_session payload before any state mutation.
func (p *RequestSessionPayload) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	if len(p.Name) > maxNameLength {
		return ErrNameTooLong
	}
	if p.TeacherID == "" {
		return ErrMissingTeacherID
	}
	return nil
}

// Validate checks a signaling payload: relays need an explicit target.
func (p *SignalPayload) Validate() error {
	if p.Target == "" {
		return ErrMissingTarget
	}
	return nil
}

// Validate checks an evaluation record before it reaches the store.
func (e *Evaluation) Validate() error {
	if e.EvaluatorID == "" || e.EvaluatorName == "" {
		return errors.New("evaluator id and name are required")
	}
	if e.TargetID == "" || e.TargetName == "" {
		return errors.New("target id and name are required")
	}
	if !IsValidRole(e.EvaluatorRole) || !IsValidRole(e.TargetRole) {
		return ErrInvalidRole
	}
	if e.Rating < 1 || e.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}
