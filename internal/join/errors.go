package join

import (
	"errors"
	"fmt"
)

// SubCodeUnresolvableLaunchURL classifies a meeting link whose landing
// redirect could not be followed.
const SubCodeUnresolvableLaunchURL = "unresolvable_launch_url"

// Error is a fatal join failure. SubCode is empty for unclassified failures.
type Error struct {
	SubCode string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "join: " + e.Msg
	}
	return fmt.Sprintf("join: %s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SubCode extracts the classification from err, if any.
func SubCode(err error) string {
	var je *Error
	if errors.As(err, &je) {
		return je.SubCode
	}
	return ""
}
