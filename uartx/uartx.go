// uartx/uartx.go

// Package uartx moves bytes between application code and a serial peripheral
// through a hardware UART. The interrupt handler is the only writer of the RX
// ring and the only reader of the TX ring; application code owns the other end
// of each. No locks are taken on the data path.
//
// Two bindings implement Driver: IRQDriver moves one byte per receive/transmit
// interrupt, DMADriver hands whole buffers to a DMA engine. Callers see the
// same contract either way.
//
// Every Driver operation accepts a nil or already released *Handle and treats
// it as a no-op with a neutral result. Boards without the peripheral fitted
// run the same code paths.
package uartx

import "errors"

var (
	// ErrInvalidBaud is returned by Init when the baud rate is zero.
	ErrInvalidBaud = errors.New("uartx: invalid baud rate")
	// ErrInvalidEncoding is returned by Init for an unknown Encoding.
	ErrInvalidEncoding = errors.New("uartx: invalid encoding")
	// ErrInvalidDirection is returned by Init for an unknown Direction.
	ErrInvalidDirection = errors.New("uartx: invalid direction")
	// ErrInvalidPolarity is returned by Init for an unknown Polarity.
	ErrInvalidPolarity = errors.New("uartx: invalid polarity")
	// ErrHandleInUse is returned by Init while the hardware already has a live handle.
	ErrHandleInUse = errors.New("uartx: hardware already has a live handle")
)

// Default buffer sizing and interrupt priority.
const (
	DefaultBufferSize  = 128
	DefaultIRQPriority = 0x80
)

// UARTParity defines the parity setting used for UART communication.
type UARTParity uint8

const (
	// ParityNone disables parity generation and checking (the most common setting).
	ParityNone UARTParity = iota
	// ParityEven sets even parity (total number of 1 bits is even).
	ParityEven
	// ParityOdd sets odd parity (total number of 1 bits is odd).
	ParityOdd
)

// Encoding selects word size, parity and stop bits.
type Encoding uint8

const (
	Encoding8N1 Encoding = iota
	Encoding8E1
	Encoding8O1
	Encoding8N2
	Encoding8E2
	Encoding7E1
	encodingCount
)

type encodingInfo struct {
	name     string
	databits uint8
	stopbits uint8
	parity   UARTParity
}

var encodings = [encodingCount]encodingInfo{
	Encoding8N1: {"8N1", 8, 1, ParityNone},
	Encoding8E1: {"8E1", 8, 1, ParityEven},
	Encoding8O1: {"8O1", 8, 1, ParityOdd},
	Encoding8N2: {"8N2", 8, 2, ParityNone},
	Encoding8E2: {"8E2", 8, 2, ParityEven},
	Encoding7E1: {"7E1", 7, 1, ParityEven},
}

func (e Encoding) valid() bool { return e < encodingCount }

// DataBits returns the word size in bits.
func (e Encoding) DataBits() uint8 {
	if !e.valid() {
		return 0
	}
	return encodings[e].databits
}

// StopBits returns the number of stop bits.
func (e Encoding) StopBits() uint8 {
	if !e.valid() {
		return 0
	}
	return encodings[e].stopbits
}

// Parity returns the parity mode.
func (e Encoding) Parity() UARTParity {
	if !e.valid() {
		return ParityNone
	}
	return encodings[e].parity
}

func (e Encoding) String() string {
	if !e.valid() {
		return "invalid"
	}
	return encodings[e].name
}

// Direction limits which halves of the link are armed.
type Direction uint8

const (
	DirTxRx Direction = iota
	DirTxOnly
	DirRxOnly
)

func (d Direction) valid() bool { return d <= DirRxOnly }

// HasRx reports whether the receive half is armed.
func (d Direction) HasRx() bool { return d != DirTxOnly }

// HasTx reports whether the transmit half is armed.
func (d Direction) HasTx() bool { return d != DirRxOnly }

func (d Direction) String() string {
	switch d {
	case DirTxOnly:
		return "tx"
	case DirRxOnly:
		return "rx"
	default:
		return "txrx"
	}
}

// Polarity selects idle-high (normal) or idle-low (inverted) signalling.
type Polarity uint8

const (
	PolarityNormal Polarity = iota
	PolarityInverted
)

// Config describes a transport. A Handle keeps the Config it was created
// with; only the baud rate changes afterwards, through Driver.SetBaudRate.
type Config struct {
	BaudRate  uint32
	Encoding  Encoding
	Direction Direction
	Polarity  Polarity

	// Ring capacities, rounded up to a power of two. Zero selects DefaultBufferSize.
	RxBufferSize int
	TxBufferSize int

	// Interrupt priority handed to the hardware. Zero selects DefaultIRQPriority.
	IRQPriority uint8

	// Probe latches module presence on the first received byte.
	Probe bool
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.BaudRate == 0 {
		return ErrInvalidBaud
	}
	if !c.Encoding.valid() {
		return ErrInvalidEncoding
	}
	if !c.Direction.valid() {
		return ErrInvalidDirection
	}
	if c.Polarity > PolarityInverted {
		return ErrInvalidPolarity
	}
	if c.RxBufferSize <= 0 {
		c.RxBufferSize = DefaultBufferSize
	}
	if c.TxBufferSize <= 0 {
		c.TxBufferSize = DefaultBufferSize
	}
	if c.IRQPriority == 0 {
		c.IRQPriority = DefaultIRQPriority
	}
	return nil
}

// WriteState tracks whether a transmission is in flight.
type WriteState uint32

const (
	// WriteIdle: nothing in flight, a new write may start.
	WriteIdle WriteState = iota
	// WriteWriting: bytes queued or still leaving the hardware.
	WriteWriting
	// WriteDone: the last queued byte has been handed to the wire.
	WriteDone
)

func (s WriteState) String() string {
	switch s {
	case WriteIdle:
		return "idle"
	case WriteWriting:
		return "writing"
	case WriteDone:
		return "done"
	}
	return "unknown"
}
