package mqtt

import "github.com/embedthis/mqtt/internal/wire"

// ConnAck return codes, carried in the CONNACK packet.
const (
	ConnAccepted                     = wire.ConnAccepted
	ConnRefusedUnacceptableProtocol  = wire.ConnRefusedUnacceptableProtocol
	ConnRefusedIdentifierRejected    = wire.ConnRefusedIdentifierRejected
	ConnRefusedServerUnavailable     = wire.ConnRefusedServerUnavailable
	ConnRefusedBadUsernameOrPassword = wire.ConnRefusedBadUsernameOrPassword
	ConnRefusedNotAuthorized         = wire.ConnRefusedNotAuthorized
)

// SubAck return codes, one per requested filter.
const (
	SubackMaxQoS0 = wire.SubackMaxQoS0
	SubackMaxQoS1 = wire.SubackMaxQoS1
	SubackMaxQoS2 = wire.SubackMaxQoS2
	SubackFailure = wire.SubackFailure
)
