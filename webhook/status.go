package webhook

import "fmt"

/* Status represents the current state of a delivery
 * Follows the lifecycle: Pending -> Delivered/FailedRetrying -> Delivered/FailedRetrying/FailedExhausted
 */
type Status int

const (
	Pending Status = iota + 1
	Delivered
	FailedRetrying
	FailedExhausted
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Delivered:
		return "delivered"
	case FailedRetrying:
		return "failed_retrying"
	case FailedExhausted:
		return "failed_exhausted"
	default:
		return "unknown"
	}
}

// NewStatus creates a Status from a string
func NewStatus(str string) Status {
	switch str {
	case "pending":
		return Pending
	case "delivered":
		return Delivered
	case "failed_retrying":
		return FailedRetrying
	case "failed_exhausted":
		return FailedExhausted
	default:
		return Pending
	}
}

// Validate checks if the status is valid
func (s Status) Validate() error {
	if s < Pending || s > FailedExhausted {
		return fmt.Errorf("invalid status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s Status) IsFinal() bool {
	return s == Delivered || s == FailedExhausted
}
