package sensors

import "errors"

var (
	// ErrMapping means the register block could not be mapped. It is fatal at load.
	ErrMapping = errors.New("register block could not be mapped")
	// ErrNoAck means a byte on the bus was not acknowledged by the device.
	ErrNoAck = errors.New("device did not acknowledge")
	// ErrRange means a configuration write was outside the accepted bounds.
	ErrRange = errors.New("value out of range")
	// ErrParse means a configuration write was not a decimal integer.
	ErrParse = errors.New("malformed value")
)
