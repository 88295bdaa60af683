// ABOUTME: Error taxonomy for conversation writes and reads
// ABOUTME: Callers match with errors.Is; the gateway maps them to HTTP status codes

package conversation

import "errors"

var (
	// ErrInvalidArgument is returned for malformed identifiers or payloads,
	// before any mutation happens.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a referenced board or thread does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMembershipImmutable is returned when removing a bot from the
	// everyone channel. It also matches ErrInvalidArgument.
	ErrMembershipImmutable = &immutableError{}
)

type immutableError struct{}

func (e *immutableError) Error() string {
	return "everyone channel bot membership is immutable"
}

func (e *immutableError) Is(target error) bool {
	return target == ErrInvalidArgument
}
