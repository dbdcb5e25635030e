package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTransition indicates the requested status is not reachable
	// from the entity's current status. Nothing is mutated.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPermissionDenied indicates the actor lacks the role or branch scope
	// for the attempted action, or is not among the current step's approvers.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPreconditionFailed indicates a batch creation precondition was
	// violated; the whole batch is rejected, no partial request is created.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrConcurrentUpdate indicates the entity version changed between read
	// and write. Retry is an explicit new actor action, never automatic.
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)
