package billing

// MeteringUnit determines how raw usage is converted into billable batches
type MeteringUnit string

const (
	MeteringUnitNone         MeteringUnit = "none"          // Not billed
	MeteringUnitPerCharacter MeteringUnit = "per_character" // Usage is a character count
	MeteringUnitPerCall      MeteringUnit = "per_call"      // Usage is a call count
	MeteringUnitPerMinute    MeteringUnit = "per_minute"    // Usage is elapsed seconds, billed per started minute
)

// IsValid returns true for a known metering unit
func (u MeteringUnit) IsValid() bool {
	switch u {
	case MeteringUnitNone, MeteringUnitPerCharacter, MeteringUnitPerCall, MeteringUnitPerMinute:
		return true
	}
	return false
}

// Label returns a human-readable name for the unit
func (u MeteringUnit) Label() string {
	switch u {
	case MeteringUnitPerCharacter:
		return "per character"
	case MeteringUnitPerCall:
		return "per call"
	case MeteringUnitPerMinute:
		return "per minute"
	}
	return "not billed"
}

// ShortLabel returns the unit noun used inside rule descriptions
func (u MeteringUnit) ShortLabel() string {
	switch u {
	case MeteringUnitPerCharacter:
		return "characters"
	case MeteringUnitPerCall:
		return "calls"
	case MeteringUnitPerMinute:
		return "minutes"
	}
	return "units"
}
