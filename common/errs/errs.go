package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotFound is returned when a requested item is not found.
	NotFound = ErrorKind("Not Found")

	// InvalidArgument is returned when a caller-supplied value is malformed.
	InvalidArgument = ErrorKind("Invalid Argument")

	// Unauthorized is returned when authentication or ownership checks fail.
	Unauthorized = ErrorKind("Unauthorized")

	// Conflict is returned when a write collides with existing state.
	Conflict = ErrorKind("Conflict")

	// Unsupported is returned when a requested feature or target is not supported.
	Unsupported = ErrorKind("Unsupported")

	// Timeout is returned when a bounded wait expires.
	Timeout = ErrorKind("Timeout")

	// Closed is returned when an operation is attempted on a stopped component.
	Closed = ErrorKind("Closed")

	// InternalError is returned for invariant violations.
	InternalError = ErrorKind("Internal Error")

	OverflowUint128 = ErrorKind("overflow uint128")
	OverflowUint256 = ErrorKind("overflow uint256")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
