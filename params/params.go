package params

import (
	"github.com/vapourismo/knx-go/knx/cemi"
)

// Role identifies which of the two monitored group addresses a telegram
// was written to.
type Role string

const (
	// RoleRate is the address carrying the charge rate in Amps.
	RoleRate Role = "rate"
	// RoleDuration is the address carrying the session length in seconds.
	RoleDuration Role = "duration"
)

// Telegram is a single group write received from the KNX bus. Data holds
// the raw APDU payload, including the leading octet shared with the APCI.
type Telegram struct {
	Destination cemi.GroupAddr
	Data        []byte
}

// SessionStatus is a snapshot of the charge session, emitted after every
// transition.
type SessionStatus struct {
	Active          bool
	RateAmps        uint8
	DurationSeconds uint16
}
