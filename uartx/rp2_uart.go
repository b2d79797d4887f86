// uartx/rp2_uart.go
//go:build rp2040 || rp2350

package uartx

import (
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"
)

var _ Hardware = (*PL011)(nil)

// PL011 is the Hardware for one RP2040/RP2350 UART instance. FIFOs are left
// disabled so each receive-ready and transmit-ready interrupt corresponds to
// exactly one byte, which is what IRQDriver expects.
type PL011 struct {
	Bus       *rp.UART0_Type // PL011 register block
	Interrupt interrupt.Interrupt
	TX, RX    machine.Pin

	isr func()
}

// Configure resets the PL011, muxes its pins and programs format, polarity
// and baud. It leaves every interrupt source masked.
func (u *PL011) Configure(cfg Config) error {
	initUART(u)

	// 1) Disable UART while configuring (PL011 CR).
	u.Bus.UARTCR.ClearBits(rp.UART0_UARTCR_UARTEN | rp.UART0_UARTCR_RXE | rp.UART0_UARTCR_TXE)

	// 2) Mux pins before touching baud/format, then apply line inversion.
	// Pin.Configure rewrites the whole CTRL register, so overrides come after.
	if cfg.Direction.HasTx() && u.TX != machine.NoPin {
		u.TX.Configure(machine.PinConfig{Mode: machine.PinUART})
		setOutputInvert(u.TX, cfg.Polarity == PolarityInverted)
	}
	if cfg.Direction.HasRx() && u.RX != machine.NoPin {
		u.RX.Configure(machine.PinConfig{Mode: machine.PinUART})
		setInputInvert(u.RX, cfg.Polarity == PolarityInverted)
	}

	// 3) Baud and format. SetFormat does a full LCR_H write.
	u.SetBaudRate(cfg.BaudRate)
	if err := u.SetFormat(cfg.Encoding.DataBits(), cfg.Encoding.StopBits(), cfg.Encoding.Parity()); err != nil {
		return err
	}

	// 4) Clear any pending IRQs and purge RX (read until RXFE).
	u.Bus.UARTIMSC.Set(0)
	u.Bus.UARTICR.Set(0x7FF)
	for !u.Bus.UARTFR.HasBits(rp.UART0_UARTFR_RXFE) {
		_ = u.Bus.UARTDR.Get()
	}
	// Clear sticky RX errors (ECR share-address via RSR).
	u.Bus.UARTRSR.Set(0)

	// 5) Enable UART and only the halves in use.
	cr := uint32(rp.UART0_UARTCR_UARTEN)
	if cfg.Direction.HasTx() {
		cr |= rp.UART0_UARTCR_TXE
	}
	if cfg.Direction.HasRx() {
		cr |= rp.UART0_UARTCR_RXE
	}
	u.Bus.UARTCR.Set(cr)
	return nil
}

// SetBaudRate programs the PL011 integer and fractional divisors and performs
// the "dummy" LCR_H write required to latch them.
func (u *PL011) SetBaudRate(br uint32) {
	div := 8 * machine.CPUFrequency() / br

	ibrd := div >> 7
	var fbrd uint32
	switch {
	case ibrd == 0:
		ibrd = 1
		fbrd = 0
	case ibrd >= 65535:
		ibrd = 65535
		fbrd = 0
	default:
		fbrd = ((div & 0x7f) + 1) / 2
	}

	u.Bus.UARTIBRD.Set(ibrd)
	u.Bus.UARTFBRD.Set(fbrd)

	// PL011 requires an LCR_H write after changing divisors.
	u.Bus.UARTLCR_H.Set(u.Bus.UARTLCR_H.Get())
}

// SetFormat sets data bits, stop bits and parity with the FIFOs disabled.
// It writes the full LCR_H value (not OR-ing).
func (u *PL011) SetFormat(databits, stopbits uint8, parity UARTParity) error {
	if databits < 5 || databits > 8 {
		return errors.New("invalid databits")
	}
	if stopbits != 1 && stopbits != 2 {
		return errors.New("invalid stopbits")
	}

	var pen, pev uint32
	if parity != ParityNone {
		pen = rp.UART0_UARTLCR_H_PEN
		if parity == ParityEven {
			pev = rp.UART0_UARTLCR_H_EPS
		}
	}

	val := uint32((databits-5)<<rp.UART0_UARTLCR_H_WLEN_Pos|
		(stopbits-1)<<rp.UART0_UARTLCR_H_STP2_Pos) |
		pen | pev

	u.Bus.UARTLCR_H.Set(val)
	return nil
}

// Shutdown masks every source and disables the UART. A byte in the shifter is cut.
func (u *PL011) Shutdown() {
	u.Bus.UARTIMSC.Set(0)
	u.Bus.UARTCR.ClearBits(rp.UART0_UARTCR_UARTEN | rp.UART0_UARTCR_RXE | rp.UART0_UARTCR_TXE)
	u.Bus.UARTICR.Set(0x7FF)
}

func (u *PL011) Attach(isr func(), priority uint8) {
	u.Interrupt.Disable()
	u.isr = isr
	u.Interrupt.SetPriority(priority)
	u.Interrupt.Enable()
}

func (u *PL011) Detach() {
	u.Interrupt.Disable()
	u.isr = nil
}

func (u *PL011) Mask()   { u.Interrupt.Disable() }
func (u *PL011) Unmask() { u.Interrupt.Enable() }

// Status maps the masked interrupt status onto the driver conditions. With
// FIFOs off, RX level and RX timeout both mean "one byte waiting".
func (u *PL011) Status() Status {
	mis := u.Bus.UARTMIS.Get()
	var st Status
	if mis&(rp.UART0_UARTMIS_RXMIS|rp.UART0_UARTMIS_RTMIS) != 0 {
		st |= StatusRxReady
	}
	if mis&rp.UART0_UARTMIS_TXMIS != 0 {
		st |= StatusTxReady
	}
	return st
}

func (u *PL011) Clear(s Status) {
	var icr uint32
	if s&StatusRxReady != 0 {
		icr |= rp.UART0_UARTICR_RXIC | rp.UART0_UARTICR_RTIC
	}
	if s&StatusTxReady != 0 {
		icr |= rp.UART0_UARTICR_TXIC
	}
	if icr != 0 {
		u.Bus.UARTICR.Set(icr)
	}
}

// ReadData returns the received byte. Reading DR clears the per-byte error flags.
func (u *PL011) ReadData() byte {
	return byte(u.Bus.UARTDR.Get() & 0xFF)
}

func (u *PL011) WriteData(b byte) {
	u.Bus.UARTDR.Set(uint32(b))
}

func (u *PL011) EnableRx(on bool) {
	const m = rp.UART0_UARTIMSC_RXIM | rp.UART0_UARTIMSC_RTIM
	if on {
		u.Bus.UARTIMSC.SetBits(m)
	} else {
		u.Bus.UARTIMSC.ClearBits(m)
	}
}

func (u *PL011) EnableTx(on bool) {
	if on {
		u.Bus.UARTIMSC.SetBits(rp.UART0_UARTIMSC_TXIM)
	} else {
		u.Bus.UARTIMSC.ClearBits(rp.UART0_UARTIMSC_TXIM)
	}
}

// TxNeedsStart reports TXFE with no TXRIS latched. The PL011 raises the
// transmit interrupt only when the holding register empties, so after an
// ICR clear with nothing written, setting TXIM alone never fires.
func (u *PL011) TxNeedsStart() bool {
	return u.Bus.UARTFR.HasBits(rp.UART0_UARTFR_TXFE) &&
		!u.Bus.UARTRIS.HasBits(rp.UART0_UARTRIS_TXRIS)
}

// TxIdle reports FR.BUSY==0 (shifter idle). BUSY does not raise an
// interrupt; it is only polled.
func (u *PL011) TxIdle() bool {
	return !u.Bus.UARTFR.HasBits(rp.UART0_UARTFR_BUSY)
}

func (u *PL011) handleInterrupt(interrupt.Interrupt) {
	if isr := u.isr; isr != nil {
		isr()
	}
}

// initUART asserts and releases the peripheral reset for the selected PL011.
func initUART(u *PL011) {
	var resetVal uint32
	switch {
	case u.Bus == rp.UART0:
		resetVal = rp.RESETS_RESET_UART0
	case u.Bus == rp.UART1:
		resetVal = rp.RESETS_RESET_UART1
	}

	rp.RESETS.RESET.SetBits(resetVal)
	rp.RESETS.RESET.ClearBits(resetVal)
	for !rp.RESETS.RESET_DONE.HasBits(resetVal) {
	}
}

// gpioCtrl returns the IO_BANK0 GPIOn_CTRL register (STATUS/CTRL pairs, 8 bytes apart).
func gpioCtrl(p machine.Pin) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Add(unsafe.Pointer(&rp.IO_BANK0.GPIO0_CTRL), 8*uintptr(p)))
}

func setOutputInvert(p machine.Pin, invert bool) {
	reg := gpioCtrl(p)
	reg.ClearBits(rp.IO_BANK0_GPIO0_CTRL_OUTOVER_Msk)
	if invert {
		reg.SetBits(rp.IO_BANK0_GPIO0_CTRL_OUTOVER_INVERT << rp.IO_BANK0_GPIO0_CTRL_OUTOVER_Pos)
	}
}

func setInputInvert(p machine.Pin, invert bool) {
	reg := gpioCtrl(p)
	reg.ClearBits(rp.IO_BANK0_GPIO0_CTRL_INOVER_Msk)
	if invert {
		reg.SetBits(rp.IO_BANK0_GPIO0_CTRL_INOVER_INVERT << rp.IO_BANK0_GPIO0_CTRL_INOVER_Pos)
	}
}
