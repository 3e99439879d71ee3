package ledger

import "errors"

// Code is a machine-readable rejection reason.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodePhaseError            Code = "PHASE_ERROR"
	CodeAlreadyOpen           Code = "ALREADY_OPEN"
	CodeTooEarly              Code = "TOO_EARLY"
	CodeDuplicateContribution Code = "DUPLICATE_CONTRIBUTION"
	CodeLimitExceeded         Code = "LIMIT_EXCEEDED"
	CodeInvalidLimit          Code = "INVALID_LIMIT"
	CodeNotAParticipant       Code = "NOT_A_PARTICIPANT"
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeInvalidAddress        Code = "INVALID_ADDRESS"
)

// Error is a rejected ledger operation. State is never modified when one is returned.
type Error struct {
	Code   Code
	Reason string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Reason
}

// Is matches any *Error with the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnauthorized          = &Error{Code: CodeUnauthorized, Reason: "caller is not the owner"}
	ErrPhase                 = &Error{Code: CodePhaseError, Reason: "wrong phase"}
	ErrAlreadyOpen           = &Error{Code: CodeAlreadyOpen, Reason: "window already open"}
	ErrTooEarly              = &Error{Code: CodeTooEarly, Reason: "window cannot be opened yet"}
	ErrDuplicateContribution = &Error{Code: CodeDuplicateContribution, Reason: "already contributed in this window"}
	ErrLimitExceeded         = &Error{Code: CodeLimitExceeded, Reason: "amount exceeds max contribution"}
	ErrInvalidLimit          = &Error{Code: CodeInvalidLimit, Reason: "invalid max contribution"}
	ErrNotAParticipant       = &Error{Code: CodeNotAParticipant, Reason: "no balance to withdraw"}
	ErrInvalidAmount         = &Error{Code: CodeInvalidAmount, Reason: "amount must be positive"}
	ErrInvalidAddress        = &Error{Code: CodeInvalidAddress, Reason: "malformed address"}
)

func reject(code Code, reason string) error {
	return &Error{Code: code, Reason: reason}
}

// GetCode extracts the code from any error, CodeUnknown if it is not a ledger error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
