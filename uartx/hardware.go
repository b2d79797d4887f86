// uartx/hardware.go

package uartx

// Status is a set of pending interrupt conditions.
type Status uint8

const (
	StatusRxReady Status = 1 << iota
	StatusTxReady
	StatusRxDMADone
	StatusTxDMADone
)

// Hardware is the register-level surface of one UART instance. Drivers only
// ever see these operations, never a register layout.
//
// Status, Clear, ReadData, WriteData, EnableTx and TxIdle are called from
// interrupt context. WriteData and TxNeedsStart are also called with the line
// masked. Everything else runs in application context.
type Hardware interface {
	// Configure programs pins, format, polarity and baud rate and enables the
	// peripheral with all interrupt sources disabled.
	Configure(cfg Config) error
	// SetBaudRate reprograms timing only. Callers mask the line around it.
	SetBaudRate(baud uint32)
	// Shutdown disables the peripheral. A partially shifted byte is lost.
	Shutdown()

	// Attach installs isr on the interrupt line and enables the line.
	Attach(isr func(), priority uint8)
	// Detach disables the line and waits out a running handler.
	Detach()
	// Mask and Unmask bracket work that must appear atomic to the handler.
	Mask()
	Unmask()

	// Status returns the enabled conditions currently pending.
	Status() Status
	// Clear acknowledges the given pending conditions.
	Clear(s Status)
	ReadData() byte
	WriteData(b byte)

	// EnableRx and EnableTx gate the receive-ready and transmit-ready sources.
	EnableRx(on bool)
	EnableTx(on bool)
	// TxIdle reports that the transmit shifter has no byte in progress.
	TxIdle() bool
	// TxNeedsStart reports that the data register is empty and no
	// transmit-ready condition is latched. On edge-triggered sources arming
	// alone then raises nothing; the first byte must be written directly.
	// Level-triggered sources report false.
	TxNeedsStart() bool
}

// DMAHardware adds DMA channels to a Hardware.
type DMAHardware interface {
	Hardware
	// StartTxDMA transmits p and raises StatusTxDMADone when the burst is done.
	// p must stay untouched until then.
	StartTxDMA(p []byte)
	// StartRxDMA receives into buf circularly and raises StatusRxDMADone as
	// bytes land.
	StartRxDMA(buf []byte)
	// RxDMAPosition returns the index in buf the engine writes next.
	RxDMAPosition() int
}
