package sensors

// Direction selects whether a pin is driven by us or sampled.
type Direction int

const (
	Output Direction = iota
	Input
)

func (d Direction) String() string {
	switch d {
	case Output:
		return "OUTPUT"
	case Input:
		return "INPUT"
	default:
		return "UNKNOWN"
	}
}

// Pins is the minimal set of GPIO primitives a software bus needs.
// Implementations apply their own settle delay after every call.
type Pins interface {
	SetPin(pin int)
	ClearPin(pin int)
	ConfigureDirection(pin int, dir Direction)
	ReadPin(pin int) bool
}

// BusMaster drives an I2C-style bus one condition or byte at a time.
type BusMaster interface {
	Start()
	Stop()
	// SendByte clocks out b and reports whether the receiver acknowledged it.
	SendByte(b byte) bool
	// ReceiveByte clocks in one byte and answers with ack (true) or nack.
	ReceiveByte(ack bool) byte
}
