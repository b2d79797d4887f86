// uartx/dma.go

package uartx

// DMADriver hands transmit buffers straight to a DMA engine and receives
// through a circular DMA buffer that the interrupt handler copies into the RX
// ring. Callers read bytes the same way as with IRQDriver.
type DMADriver struct {
	hw DMAHardware
}

// NewDMADriver binds a driver to one DMA-capable hardware instance.
func NewDMADriver(hw DMAHardware) *DMADriver {
	return &DMADriver{hw: hw}
}

// Init configures the hardware, starts circular RX DMA when the direction
// includes RX, and returns the live handle.
func (d *DMADriver) Init(cfg Config) (*Handle, error) {
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
	h.dma = d.hw
	d.hw.Attach(h.handleDMAInterrupt, cfg.IRQPriority)
	if cfg.Direction.HasRx() {
		h.rxDMA = make([]byte, h.rx.Size())
		d.hw.StartRxDMA(h.rxDMA)
	}
	return h, nil
}

// Deinit stops both DMA directions and invalidates h. An unfinished burst is
// abandoned.
func (d *DMADriver) Deinit(h *Handle) {
	if !h.valid(d) {
		return
	}
	h.live.Store(false)
	release(d.hw, h)
	h.dmaBusy.Store(false)
}

// SetBaudRate retimes a live handle.
func (d *DMADriver) SetBaudRate(h *Handle, baud uint32) {
	if !h.valid(d) || baud == 0 {
		return
	}
	retime(d.hw, h, baud)
}

// SendBuffer starts a burst over p. It accepts all of p or, while a previous
// burst is still running, none of it. p must not be modified until
// TxCompleted reports true.
func (d *DMADriver) SendBuffer(h *Handle, p []byte) int {
	if !h.valid(d) || len(p) == 0 || !h.cfg.Direction.HasTx() {
		return 0
	}
	if h.dmaBusy.Load() {
		h.stats.txDrops.Add(uint32(len(p)))
		return 0
	}

	d.hw.Mask()
	h.dmaBusy.Store(true)
	h.markWriting()
	d.hw.StartTxDMA(p)
	d.hw.Unmask()
	h.stats.txBytes.Add(uint32(len(p)))
	return len(p)
}

// GetByte pops one byte from the RX ring.
func (d *DMADriver) GetByte(h *Handle) (byte, bool) {
	if !h.valid(d) {
		return 0, false
	}
	return h.rx.Get()
}

// TxCompleted reports that no burst is running and the shifter is idle.
func (d *DMADriver) TxCompleted(h *Handle) bool {
	if !h.valid(d) {
		return true
	}
	return !h.dmaBusy.Load() && d.hw.TxIdle()
}

func (h *Handle) handleDMAInterrupt() {
	h.stats.irqCount.Add(1)
	st := h.hw.Status()

	if st&StatusRxDMADone != 0 {
		h.drainRxDMA()
		h.hw.Clear(StatusRxDMADone)
	}

	if st&StatusTxDMADone != 0 {
		h.dmaBusy.Store(false)
		h.markDone()
		h.hw.Clear(StatusTxDMADone)
	}
}

// drainRxDMA copies everything the engine wrote since the last pass into the
// RX ring. If the engine lapped the read position the lapped bytes are lost.
func (h *Handle) drainRxDMA() {
	if len(h.rxDMA) == 0 {
		return
	}
	pos := h.dma.RxDMAPosition()
	for h.rxPos != pos {
		h.receive(h.rxDMA[h.rxPos])
		h.rxPos++
		if h.rxPos == len(h.rxDMA) {
			h.rxPos = 0
		}
	}
}
