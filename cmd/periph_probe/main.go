//go:build rp2040 || rp2350

// cmd/periph_probe powers a module on UART1 in probe mode and reports whether
// it speaks. The module is switched off again as soon as its first byte
// arrives. Wire the module enable to GP15 (active low).
package main

import (
	"machine"
	"time"

	"github.com/jangala-dev/tinygo-modlink/peripheral"
	"github.com/jangala-dev/tinygo-modlink/uartx"
)

const (
	baud      = 115200
	enablePin = machine.GP15
	window    = 3 * time.Second
)

func printStats(label string, s uartx.Stats) {
	println("==", label)
	println("IRQ:  count=", s.IRQCount)
	println("RX:   bytes=", s.RxBytes, " drops=", s.RxDrops)
	println("TX:   bytes=", s.TxBytes, " drops=", s.TxDrops)
}

func main() {
	delay := 5
	for i := 0; i < delay; i++ {
		println("probe starting in ", delay-i, " seconds")
		time.Sleep(time.Second)
	}
	println("peripheral probe")

	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	ctl := peripheral.New(
		uartx.NewIRQDriver(uartx.UART1),
		peripheral.NewPower(peripheral.PinLine(enablePin), true),
		uartx.Config{Probe: true},
	)
	if err := ctl.Initialize(baud, true); err != nil {
		println("fatal:", err.Error())
		for {
			time.Sleep(time.Hour)
		}
	}

	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if ctl.Service() {
			break
		}
		time.Sleep(time.Millisecond)
	}
	st := ctl.Stats()

	if ctl.Present() {
		println(" result: module present, disabled")
		machine.LED.High()
	} else {
		println(" result: no answer within", window.String())
		printStats("after probe", st)
		ctl.Disable()
	}
	println("\ndone")
	for {
		time.Sleep(time.Hour)
	}
}
