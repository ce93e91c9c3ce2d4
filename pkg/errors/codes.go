package errors

// ErrorCode identifies a class of dispatch pipeline failure.
type ErrorCode string

const (
	// ErrPersistence indicates bundle persistence failed; the whole
	// bundle was rolled back.
	ErrPersistence ErrorCode = "PERSISTENCE_FAILURE"

	// ErrRoutingInvariant indicates the router failed to produce a
	// channel. The router is total by contract, so this is a
	// programming error, never an operational condition.
	ErrRoutingInvariant ErrorCode = "ROUTING_INVARIANT_VIOLATION"

	// ErrTransientSend indicates a retryable send failure (network
	// error, rate limit, timeout). Permanent send failures and rejected
	// idempotency claims carry no code of their own: the first is a
	// sender Outcome that lands the row in ABANDONED, the second is a
	// normal skip, not an error.
	ErrTransientSend ErrorCode = "TRANSIENT_SEND_FAILURE"

	// ErrBundleConsumed indicates a bundle was handed to the broker
	// more than once.
	ErrBundleConsumed ErrorCode = "BUNDLE_CONSUMED"

	// ErrNilEntry indicates a nil log or notification was added to a
	// bundle.
	ErrNilEntry ErrorCode = "NIL_ENTRY"

	// ErrQueueFull indicates the async store queue rejected a bundle
	// under backpressure.
	ErrQueueFull ErrorCode = "QUEUE_FULL"

	// ErrInvalidTransition indicates a notification state transition
	// that the state machine forbids.
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrNotFound indicates the referenced notification row does not
	// exist.
	ErrNotFound ErrorCode = "NOT_FOUND"
)

// retryableCodes lists the codes whose failures may be retried.
var retryableCodes = map[ErrorCode]bool{
	ErrPersistence:   true,
	ErrTransientSend: true,
	ErrQueueFull:     true,
}

// IsRetryableCode reports whether failures with the given code may be
// retried.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
