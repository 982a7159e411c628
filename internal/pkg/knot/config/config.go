// Package config validates KNOT configuration entries pushed by the
// cloud: event flags, the time interval they imply, and threshold
// ordering. It has no state of its own.
package config

import "github.com/knot-edge/gateway/internal/pkg/knot/trust"

// Event flag bits. NONE is the zero value; any bit outside this set is
// rejected.
const (
	FlagNone            uint8 = 0
	FlagTime            uint8 = 1 << 0
	FlagLowerThreshold  uint8 = 1 << 1
	FlagUpperThreshold  uint8 = 1 << 2
	FlagChange          uint8 = 1 << 3
	FlagUnregistered    uint8 = 1 << 4

	knownFlags = FlagTime | FlagLowerThreshold | FlagUpperThreshold | FlagChange | FlagUnregistered
)

// FailureKind enumerates the ways a config entry can fail validation.
// The zero value, Valid, means no failure.
type FailureKind int

const (
	Valid FailureKind = iota
	FailureUnknownFlag
	FailureTimeFlagMismatch
	FailureLimitOrder
)

// Validate checks a single entry against the protocol's rules:
//   - event_flags must be zero or a subset of the known flag set.
//   - FlagTime set implies time_sec > 0; clear implies time_sec == 0.
//   - if either threshold flag is set, upper_limit must sort strictly
//     after lower_limit under Limit.Less's lexicographic order.
func Validate(e trust.ConfigEntry) FailureKind {
	if e.EventFlags != FlagNone && e.EventFlags&^knownFlags != 0 {
		return FailureUnknownFlag
	}

	timeSet := e.EventFlags&FlagTime != 0
	if timeSet != (e.TimeSec > 0) {
		return FailureTimeFlagMismatch
	}

	thresholdSet := e.EventFlags&(FlagLowerThreshold|FlagUpperThreshold) != 0
	if thresholdSet && !e.LowerLimit.Less(e.UpperLimit) {
		return FailureLimitOrder
	}

	return Valid
}

// ValidateAll validates every entry in order, returning the first
// failure encountered, or Valid if all entries pass.
func ValidateAll(entries []trust.ConfigEntry) FailureKind {
	for _, e := range entries {
		if f := Validate(e); f != Valid {
			return f
		}
	}
	return Valid
}
