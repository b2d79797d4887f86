// uartx/driver.go

package uartx

// Driver is the transport contract shared by every binding. A nil or released
// handle turns each call into a no-op: SendBuffer accepts nothing, GetByte
// reports no data and TxCompleted reports true.
type Driver interface {
	Init(cfg Config) (*Handle, error)
	Deinit(h *Handle)
	SetBaudRate(h *Handle, baud uint32)
	SendBuffer(h *Handle, p []byte) int
	GetByte(h *Handle) (byte, bool)
	TxCompleted(h *Handle) bool
}

var (
	_ Driver = (*IRQDriver)(nil)
	_ Driver = (*DMADriver)(nil)
)

// IRQDriver moves one byte per receive-ready or transmit-ready interrupt.
//
// Invariants (TX path):
//   - Steady-state reader of the TX ring and writer of the data register is
//     the interrupt handler.
//   - SendBuffer touches either only with the line masked, and only when the
//     hardware reports nothing latched and the register empty (masked kick).
//     Writing the first byte creates the empty transition that edge-triggered
//     sources need.
//   - The transmit-ready source is armed by SendBuffer and disarmed by the
//     handler once the ring is empty; arming happens with the line masked so a
//     concurrent "ring empty" pass cannot disarm freshly queued bytes.
type IRQDriver struct {
	hw Hardware
}

// NewIRQDriver binds a driver to one hardware instance.
func NewIRQDriver(hw Hardware) *IRQDriver {
	return &IRQDriver{hw: hw}
}

// Init configures the hardware and returns the live handle. RX interrupts are
// armed immediately, TX interrupts on the first SendBuffer.
func (d *IRQDriver) Init(cfg Config) (*Handle, error) {
	if !claim(d.hw) {
		return nil, ErrHandleInUse
	}
	if err := cfg.Validate(); err != nil {
		unclaim(d.hw)
		return nil, err
	}
	if err := d.hw.Configure(cfg); err != nil {
		unclaim(d.hw)
		return nil, err
	}
	h := newHandle(d, d.hw, cfg)
	d.hw.Attach(h.handleInterrupt, cfg.IRQPriority)
	if cfg.Direction.HasRx() {
		d.hw.EnableRx(true)
	}
	return h, nil
}

// Deinit disarms the interrupt, shuts the hardware down and invalidates h.
// A byte still in the shifter is lost.
func (d *IRQDriver) Deinit(h *Handle) {
	if !h.valid(d) {
		return
	}
	h.live.Store(false)
	release(d.hw, h)
}

// SetBaudRate retimes a live handle. Queued bytes stay queued.
func (d *IRQDriver) SetBaudRate(h *Handle, baud uint32) {
	if !h.valid(d) || baud == 0 {
		return
	}
	retime(d.hw, h, baud)
}

// SendBuffer queues as much of p as fits in the TX ring and arms the
// transmit-ready interrupt. The remainder is dropped and counted.
func (d *IRQDriver) SendBuffer(h *Handle, p []byte) int {
	if !h.valid(d) || len(p) == 0 || !h.cfg.Direction.HasTx() {
		return 0
	}
	n := 0
	for n < len(p) && h.tx.Put(p[n]) {
		n++
	}
	if n < len(p) {
		h.stats.txDrops.Add(uint32(len(p) - n))
	}
	if n == 0 {
		return 0
	}

	d.hw.Mask()
	h.markWriting()
	if d.hw.TxNeedsStart() {
		if b, ok := h.tx.Get(); ok {
			d.hw.WriteData(b)
			h.stats.txBytes.Add(1)
		}
	}
	d.hw.EnableTx(true)
	d.hw.Unmask()
	return n
}

// GetByte pops one byte from the RX ring.
func (d *IRQDriver) GetByte(h *Handle) (byte, bool) {
	if !h.valid(d) {
		return 0, false
	}
	return h.rx.Get()
}

// TxCompleted reports that the TX ring is empty, the handler has seen it
// empty and the shifter is idle.
func (d *IRQDriver) TxCompleted(h *Handle) bool {
	if !h.valid(d) {
		return true
	}
	return h.tx.Used() == 0 && h.State() != WriteWriting && d.hw.TxIdle()
}

// handleInterrupt services one interrupt entry. Each pending condition is
// handled once and cleared once.
func (h *Handle) handleInterrupt() {
	h.stats.irqCount.Add(1)
	st := h.hw.Status()

	if st&StatusRxReady != 0 {
		h.receive(h.hw.ReadData())
		h.hw.Clear(StatusRxReady)
	}

	if st&StatusTxReady != 0 {
		// Acknowledge before writing: the write latches the next empty edge.
		h.hw.Clear(StatusTxReady)
		if b, ok := h.tx.Get(); ok {
			h.hw.WriteData(b)
			h.stats.txBytes.Add(1)
		} else {
			// Nothing left: stop the transmit-ready source until the next SendBuffer.
			h.hw.EnableTx(false)
			h.markDone()
		}
	}
}

func retime(hw Hardware, h *Handle, baud uint32) {
	hw.Mask()
	hw.SetBaudRate(baud)
	h.cfg.BaudRate = baud
	hw.Unmask()
}

func release(hw Hardware, h *Handle) {
	hw.Detach()
	hw.EnableRx(false)
	hw.EnableTx(false)
	hw.Shutdown()
	h.state.Store(uint32(WriteIdle))
	unclaim(hw)
}
