// uartx/rp2.go

//go:build rp2040 || rp2350

package uartx

import (
	"device/rp"
	"runtime/interrupt"
)

const deviceName = rp.Device

// UART hardware instances on the RP2040/RP2350. Pass one to NewIRQDriver.
var (
	UART0  = &_UART0
	_UART0 = PL011{
		Bus: rp.UART0,
		TX:  UART0_TX_PIN,
		RX:  UART0_RX_PIN,
	}

	UART1  = &_UART1
	_UART1 = PL011{
		Bus: rp.UART1,
		TX:  UART1_TX_PIN,
		RX:  UART1_RX_PIN,
	}
)

func init() {
	UART0.Interrupt = interrupt.New(rp.IRQ_UART0_IRQ, _UART0.handleInterrupt)
	UART1.Interrupt = interrupt.New(rp.IRQ_UART1_IRQ, _UART1.handleInterrupt)
}

