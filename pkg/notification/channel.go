package notification

// Channel is an outbound delivery mechanism.
type Channel string

const (
	// ChannelSMS delivers over SMS. Guaranteed-delivery channel and the
	// system-wide default.
	ChannelSMS Channel = "sms"
	// ChannelPush delivers over mobile push. Best effort.
	ChannelPush Channel = "push"
	// ChannelEmail delivers over email.
	ChannelEmail Channel = "email"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelPush, ChannelEmail:
		return true
	}
	return false
}

// BestEffort reports whether delivery on c is unconfirmed until an
// out-of-band receipt arrives. Best-effort sends are candidates for
// escalation to SMS.
func (c Channel) BestEffort() bool {
	return c == ChannelPush
}

// DefaultChannel is used when neither an override nor a recipient
// preference is available.
const DefaultChannel = ChannelSMS
