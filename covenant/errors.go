package covenant

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ERR_IDENTITY_MISMATCH      ErrorCode = "ERR_IDENTITY_MISMATCH"
	ERR_BAD_SIGNATURE          ErrorCode = "ERR_BAD_SIGNATURE"
	ERR_QUORUM_NOT_MET         ErrorCode = "ERR_QUORUM_NOT_MET"
	ERR_OUTPUT_MISMATCH        ErrorCode = "ERR_OUTPUT_MISMATCH"
	ERR_INSUFFICIENT_ENERGY    ErrorCode = "ERR_INSUFFICIENT_ENERGY"
	ERR_TIMELOCK_DISABLED      ErrorCode = "ERR_TIMELOCK_DISABLED"
	ERR_DEADLINE_KIND_MISMATCH ErrorCode = "ERR_DEADLINE_KIND_MISMATCH"
	ERR_DEADLINE_NOT_REACHED   ErrorCode = "ERR_DEADLINE_NOT_REACHED"

	ERR_PARSE               ErrorCode = "ERR_PARSE"
	ERR_ARITHMETIC_OVERFLOW ErrorCode = "ERR_ARITHMETIC_OVERFLOW"
	ERR_UNKNOWN_TRANSITION  ErrorCode = "ERR_UNKNOWN_TRANSITION"

	// Raised by the settlement layer, never by the predicates.
	ERR_MISSING_RECORD     ErrorCode = "ERR_MISSING_RECORD"
	ERR_ALREADY_SPENT      ErrorCode = "ERR_ALREADY_SPENT"
	ERR_LOCKTIME_NOT_FINAL ErrorCode = "ERR_LOCKTIME_NOT_FINAL"
	ERR_VALUE_CONSERVATION ErrorCode = "ERR_VALUE_CONSERVATION"
)

// SpendError is the structured rejection reason returned by every check.
type SpendError struct {
	Code ErrorCode
	Msg  string
}

func (e *SpendError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func spenderr(code ErrorCode, msg string) error {
	return &SpendError{Code: code, Msg: msg}
}

// NewSpendError lets collaborators outside the package raise coded rejections.
func NewSpendError(code ErrorCode, msg string) error {
	return spenderr(code, msg)
}

// CodeOf extracts the rejection code from err, or "" when err is not a SpendError.
func CodeOf(err error) ErrorCode {
	var se *SpendError
	if errors.As(err, &se) && se != nil {
		return se.Code
	}
	return ""
}
