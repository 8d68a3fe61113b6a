package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotEntitled = errors.New("user is not entitled to this test")

	ErrTestNotFound = errors.New("test not found")
	ErrTestNotOpen  = errors.New("test is not open yet")
	ErrTestClosed   = errors.New("test is closed")

	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time expired")
	ErrAttemptNotSubmitted     = errors.New("attempt not submitted yet")

	ErrQuestionNotFound  = errors.New("question not found")
	ErrQuestionNotInTest = errors.New("question does not belong to this test")
	ErrInvalidOption     = errors.New("option does not belong to this question")
)

// PermissionError is returned when a user acts on a resource they do not own.
// The details are for logs only; callers see a generic denial.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func IsPermissionError(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr)
}
