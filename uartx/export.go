// uartx/export.go

//go:build rp2040 || rp2350

package uartx

import "machine"

type Pin = machine.Pin

const (
	NoPin        = machine.NoPin
	UART0_TX_PIN = machine.UART0_TX_PIN
	UART0_RX_PIN = machine.UART0_RX_PIN
	UART1_TX_PIN = machine.UART1_TX_PIN
	UART1_RX_PIN = machine.UART1_RX_PIN
)
