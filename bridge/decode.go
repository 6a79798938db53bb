package bridge

import (
	"github.com/pkg/errors"
	"github.com/vapourismo/knx-go/knx/dpt"

	"knx-ev-bridge/params"
)

// ErrInvalidLength is returned when a telegram payload does not match the
// width expected for its address role.
var ErrInvalidLength = errors.New("invalid payload length")

// DecodedValue is the typed value carried by a telegram on one of the two
// monitored addresses. Exactly one of the value fields is meaningful,
// selected by Role.
type DecodedValue struct {
	Role params.Role
	// RateAmps is the charge rate, set when Role is RoleRate.
	RateAmps uint8
	// DurationSeconds is the session length, set when Role is RoleDuration.
	DurationSeconds uint16
}

// decodeTelegram interprets data as the value for the given address role.
// The rate address carries a DPT 5.005 unsigned 8 bit value in Amps, the
// duration address a DPT 7.001 unsigned 16 bit value in seconds. data is
// the raw APDU payload; its first octet is shared with the APCI, so a one
// octet value arrives as two octets and a two octet value as three.
func decodeTelegram(role params.Role, data []byte) (DecodedValue, error) {
	switch role {
	case params.RoleRate:
		if len(data) != 2 {
			return DecodedValue{}, errors.Wrapf(ErrInvalidLength, "rate payload of %d octets", len(data))
		}
		var val dpt.DPT_5005
		if err := val.Unpack(data); err != nil {
			return DecodedValue{}, errors.Wrap(err, "unpacking rate")
		}
		return DecodedValue{Role: role, RateAmps: uint8(val)}, nil
	case params.RoleDuration:
		if len(data) != 3 {
			return DecodedValue{}, errors.Wrapf(ErrInvalidLength, "duration payload of %d octets", len(data))
		}
		var val dpt.DPT_7001
		if err := val.Unpack(data); err != nil {
			return DecodedValue{}, errors.Wrap(err, "unpacking duration")
		}
		return DecodedValue{Role: role, DurationSeconds: uint16(val)}, nil
	}
	return DecodedValue{}, errors.Errorf("unknown address role %q", role)
}
