package notification

// Status is a notification's position in the delivery state machine.
//
//	CREATED → QUEUED → SENT → DELIVERED   (terminal success)
//	          QUEUED → FAILED → QUEUED    (retry, bounded)
//	                   FAILED → ABANDONED (terminal failure)
//	          SENT → DELIVERED | FAILED   (out-of-band receipt)
//	          SENT → QUEUED               (escalation re-queue)
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusQueued    Status = "QUEUED"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusAbandoned Status = "ABANDONED"
)

// transitions lists every permitted state change.
var transitions = map[Status][]Status{
	StatusCreated: {StatusQueued},
	StatusQueued:  {StatusSent, StatusFailed},
	// A SENT notification may be corrected by an asynchronous delivery
	// receipt in either direction, or re-queued when an unconfirmed
	// best-effort send escalates to the fallback channel.
	StatusSent:   {StatusDelivered, StatusFailed, StatusQueued},
	StatusFailed: {StatusQueued, StatusAbandoned},
}

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusAbandoned
}

// CanTransition reports whether the state machine permits s → next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusQueued, StatusSent, StatusDelivered, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// Readable reports whether the read flag may be set in this status.
// Only notifications that actually reached the recipient surface
// (SENT or DELIVERED) can be marked read.
func (s Status) Readable() bool {
	return s == StatusSent || s == StatusDelivered
}
