package ledger

import (
	"fmt"
	"strings"
)

// StatusError is a terminal non-2xx answer from the ledger API. Client
// errors (4xx) are never retried; the caller decides what to record.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ledger api status %d", e.Code)
	}
	return fmt.Sprintf("ledger api status %d: %s", e.Code, body)
}

// Retryable reports whether the status may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500
}
