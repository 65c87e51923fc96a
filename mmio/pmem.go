package mmio

import (
	"fmt"

	"periph.io/x/host/v3/pmem"

	"github.com/mklimuk/lightsensor"
)

// physical is a Registers view over /dev/mem.
type physical struct {
	view  *pmem.View
	words []uint32
}

func (p *physical) Load(offset uint32) uint32 {
	return p.words[offset/4]
}

func (p *physical) Store(offset uint32, value uint32) {
	p.words[offset/4] = value
}

func (p *physical) Close() error {
	return p.view.Close()
}

// Map maps size bytes of physical memory at base and returns a pin handle on
// top of it. Any failure wraps sensors.ErrMapping.
func Map(base uint64, size int, layout Layout, opts ...BlockOpt) (*Block, error) {
	if err := layout.Validate(size); err != nil {
		return nil, fmt.Errorf("%w: %w", sensors.ErrMapping, err)
	}
	view, err := pmem.Map(base, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %#x (%#x bytes): %w", sensors.ErrMapping, base, size, err)
	}
	return NewBlock(&physical{view: view, words: view.Uint32()}, layout, opts...), nil
}
