// peripheral/power_machine.go
//go:build baremetal

package peripheral

import "machine"

// PinLine adapts a machine.Pin to Line.
type PinLine machine.Pin

func (p PinLine) Configure() {
	machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinOutput})
}

func (p PinLine) Set(high bool) {
	machine.Pin(p).Set(high)
}
