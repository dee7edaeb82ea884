package fdc

import "log/slog"

// Config holds the controller's tunables.
type Config struct {
	// TStatesPerMillisecond converts the mechanical delays of head movement
	// into ticks. The default matches a 3.5 MHz CPU clock.
	TStatesPerMillisecond uint32
	// MaxTrack is the highest track Step-In can move the head to.
	MaxTrack uint8
	// Logger receives a Debug record for every command. Nil discards logs.
	Logger *slog.Logger
}

const (
	defaultTStatesPerMillisecond = 3500
	defaultMaxTrack              = 79

	// Delays in milliseconds.
	headSettleDelay = 6
	stepDelay       = 6
)

// DefaultConfig returns the configuration of a Beta Disk interface on a
// standard machine.
func DefaultConfig() Config {
	return Config{
		TStatesPerMillisecond: defaultTStatesPerMillisecond,
		MaxTrack:              defaultMaxTrack,
	}
}
