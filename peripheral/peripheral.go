// peripheral/peripheral.go

// Package peripheral is the main-loop facing side of a serial peripheral
// module such as a wireless companion radio: it owns the module's enable line
// and the one transport handle for its UART.
//
// Every method except Initialize is safe to call with no live transport and
// then returns a neutral result: Write accepts nothing, Read reports no data,
// IsWriting reports false. The same calling code runs on boards where the
// module is not fitted.
//
// A Controller is used from the application loop only; the interrupt handler
// never touches it.
package peripheral

import "github.com/jangala-dev/tinygo-modlink/uartx"

// Controller drives one peripheral module.
type Controller struct {
	driver uartx.Driver
	power  *Power
	cfg    uartx.Config

	handle  *uartx.Handle
	present bool // probe result, kept until a new handle is created
}

// New returns a controller for the module behind driver and power. cfg
// supplies everything except the baud rate, which comes with Initialize.
// power may be nil.
func New(driver uartx.Driver, power *Power, cfg uartx.Config) *Controller {
	return &Controller{driver: driver, power: power, cfg: cfg}
}

// Initialize brings the transport up at baud, or retimes it if it is already
// up; bytes queued in either direction survive a retime. The enable line is
// then driven per enable. On first use the line is held inactive until the
// UART is armed.
func (c *Controller) Initialize(baud uint32, enable bool) error {
	c.power.Configure()

	if c.handle == nil {
		cfg := c.cfg
		cfg.BaudRate = baud
		h, err := c.driver.Init(cfg)
		if err != nil {
			return err
		}
		c.handle = h
		c.present = false
	} else {
		if baud == 0 {
			return uartx.ErrInvalidBaud
		}
		c.driver.SetBaudRate(c.handle, baud)
	}

	if enable {
		c.power.Enable()
	} else {
		c.power.Disable()
	}
	return nil
}

// Disable holds the module off and releases the transport. Calling it again
// changes nothing. Some modules drop into their bootloader when disabled
// this way. A byte still shifting out is cut short.
func (c *Controller) Disable() {
	c.power.Disable()
	if c.handle != nil {
		c.driver.Deinit(c.handle)
		c.handle = nil
	}
}

// Active reports whether a transport handle is live.
func (c *Controller) Active() bool { return c.handle != nil }

// Write queues p for transmission and returns how many bytes were accepted.
func (c *Controller) Write(p []byte) int {
	if c.handle == nil {
		return 0
	}
	return c.driver.SendBuffer(c.handle, p)
}

// Read returns the next received byte, if any.
func (c *Controller) Read() (byte, bool) {
	if c.handle == nil {
		return 0, false
	}
	return c.driver.GetByte(c.handle)
}

// TryRead copies up to len(p) received bytes into p. It never blocks; zero
// means "no data now".
func (c *Controller) TryRead(p []byte) int {
	n := 0
	for n < len(p) {
		b, ok := c.Read()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n
}

// Buffered returns the number of received bytes waiting to be read.
func (c *Controller) Buffered() int { return c.handle.Buffered() }

// IsWriting reports whether queued bytes are still on their way out.
func (c *Controller) IsWriting() bool {
	if c.handle == nil {
		return false
	}
	return !c.driver.TxCompleted(c.handle)
}

// WriteState returns the write-completion state of the live transport.
func (c *Controller) WriteState() uartx.WriteState {
	return c.handle.State()
}

// AckWrite consumes a completed write so the next poll sees idle. It reports
// whether there was a completion to consume.
func (c *Controller) AckWrite() bool {
	return c.handle.AckDone()
}

// Present reports whether probe mode has heard from the module since the
// transport was last brought up.
func (c *Controller) Present() bool {
	return c.present || c.handle.Present()
}

// Service runs the application-side half of probe mode: once the interrupt
// handler has latched the module's first byte, the module is disabled.
// Call it from the main loop. It reports whether it disabled the module.
func (c *Controller) Service() bool {
	if !c.cfg.Probe || c.handle == nil || c.present {
		return false
	}
	if !c.handle.Present() {
		return false
	}
	c.present = true
	c.Disable()
	return true
}

// Stats returns the transport counters, or zeros with no live transport.
func (c *Controller) Stats() uartx.Stats {
	return c.handle.Stats()
}
