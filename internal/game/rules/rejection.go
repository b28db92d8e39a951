package rules

import (
	"errors"
	"fmt"
)

// RejectCode classifies a recoverable rule violation.
type RejectCode string

const (
	CodeNotYourTurn            RejectCode = "NOT_YOUR_TURN"
	CodeInsufficientCoins      RejectCode = "INSUFFICIENT_COINS"
	CodeCoupRequired           RejectCode = "COUP_REQUIRED"
	CodeInvalidTarget          RejectCode = "INVALID_TARGET"
	CodeInvalidAction          RejectCode = "INVALID_ACTION"
	CodeActionPendingAlready   RejectCode = "ACTION_PENDING_ALREADY"
	CodeAlreadyResponded       RejectCode = "ALREADY_RESPONDED"
	CodeNotEligibleResponder   RejectCode = "NOT_ELIGIBLE_RESPONDER"
	CodeNoPendingAction        RejectCode = "NO_PENDING_ACTION"
	CodeChallengeAlreadyMade   RejectCode = "CHALLENGE_ALREADY_MADE"
	CodeActionNotBlockable     RejectCode = "ACTION_NOT_BLOCKABLE"
	CodeActionNotChallengeable RejectCode = "ACTION_NOT_CHALLENGEABLE"
	CodeNotYourChoice          RejectCode = "NOT_YOUR_CHOICE"
	CodeInvalidCardChoice      RejectCode = "INVALID_CARD_CHOICE"
	CodeGameNotActive          RejectCode = "GAME_NOT_ACTIVE"
)

// Rejection is a recoverable rule violation. The state that produced a
// rejection is always returned unchanged.
type Rejection struct {
	Code   RejectCode
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

func reject(code RejectCode, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection returns the rejection carried by err, if any.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// CorruptStateError reports an internal invariant violation (for example an
// impossible card count). It is fatal: the caller should not retry and the
// engine does not attempt repair.
type CorruptStateError struct {
	Reason string
}

func (e *CorruptStateError) Error() string {
	return "corrupt game state: " + e.Reason
}

func corrupt(format string, args ...interface{}) *CorruptStateError {
	return &CorruptStateError{Reason: fmt.Sprintf(format, args...)}
}
