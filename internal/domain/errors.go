package domain

import "errors"

var (
	// ErrNoActiveSession is returned when an answer or quit arrives with no
	// quiz in progress. Benign: the caller reports it and nothing mutates.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrStaleAnswer is returned when the submitted question does not match
	// the question at the current position (old buttons, replayed input).
	ErrStaleAnswer = errors.New("stale answer for a non-current question")
	// ErrBankTooSmall means the question bank has fewer entries than the
	// configured quiz size. Fatal configuration error.
	ErrBankTooSmall = errors.New("question bank smaller than quiz size")
	// ErrBankNotFound indicates the requested bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrAccessDenied is returned when a non-privileged identity invokes an
	// admin action.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnknownAdminAction is returned for admin actions outside the menu.
	ErrUnknownAdminAction = errors.New("unknown admin action")
	// ErrClearNotArmed rejects a destructive clear that was not preceded by
	// a confirmation request.
	ErrClearNotArmed = errors.New("clear not confirmed")
)
