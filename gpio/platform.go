package gpio

import (
	"fmt"
	"sort"

	"gobot.io/x/gobot/v2"
	"gobot.io/x/gobot/v2/platforms/beagleboard/beaglebone"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"gobot.io/x/gobot/v2/platforms/raspi"
)

// Connector is a gobot platform adaptor able to hand out digital pins.
type Connector interface {
	gobot.DigitalPinnerProvider
	Connect() error
	Finalize() error
}

var platforms = map[string]func() Connector{
	"beaglebone": func() Connector { return beaglebone.NewAdaptor() },
	"raspi":      func() Connector { return raspi.NewAdaptor() },
	"nanopi-neo": func() Connector { return nanopi.NewNeoAdaptor() },
}

// Platforms lists the names accepted by Connect.
func Platforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect creates and connects the adaptor of platform. Close the returned
// Board to finalize the adaptor.
func Connect(platform string) (*Board, error) {
	create, ok := platforms[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform %q, expected one of %v", platform, Platforms())
	}
	adaptor := create()
	if err := adaptor.Connect(); err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	return &Board{Connector: adaptor}, nil
}

// Board wraps a connected adaptor.
type Board struct {
	Connector
}

func (b *Board) Close() error {
	return b.Finalize()
}
