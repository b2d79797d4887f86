// uartx/handle.go

package uartx

import "sync/atomic"

// Stats holds counters since the handle was created.
type Stats struct {
	IRQCount uint32 // interrupt handler entries
	RxBytes  uint32 // bytes stored in the RX ring
	RxDrops  uint32 // bytes dropped because the RX ring was full
	TxBytes  uint32 // bytes handed to the hardware
	TxDrops  uint32 // bytes refused by SendBuffer
}

type counters struct {
	irqCount atomic.Uint32
	rxBytes  atomic.Uint32
	rxDrops  atomic.Uint32
	txBytes  atomic.Uint32
	txDrops  atomic.Uint32
}

// Handle is one live binding between a Driver and its hardware. It is created
// by Driver.Init and invalidated by Driver.Deinit.
type Handle struct {
	owner any // the Driver that issued the handle
	hw    Hardware
	cfg   Config

	rx *RingBuffer // written by the ISR, read by the application
	tx *RingBuffer // written by the application, read by the ISR

	live    atomic.Bool
	state   atomic.Uint32 // WriteState
	present atomic.Bool   // probe latch

	// DMA binding only.
	dma     DMAHardware
	dmaBusy atomic.Bool
	rxDMA   []byte
	rxPos   int // ISR-owned read position in rxDMA

	stats counters
}

func newHandle(owner any, hw Hardware, cfg Config) *Handle {
	h := &Handle{
		owner: owner,
		hw:    hw,
		cfg:   cfg,
		rx:    NewRingBuffer(cfg.RxBufferSize),
		tx:    NewRingBuffer(cfg.TxBufferSize),
	}
	h.live.Store(true)
	return h
}

// valid reports whether h is live and was issued by owner.
func (h *Handle) valid(owner any) bool {
	return h != nil && h.owner == owner && h.live.Load()
}

// Live reports whether the handle has not been released.
func (h *Handle) Live() bool { return h != nil && h.live.Load() }

// Config returns the configuration the handle runs with.
func (h *Handle) Config() Config {
	if h == nil {
		return Config{}
	}
	return h.cfg
}

// State returns the write-completion state.
func (h *Handle) State() WriteState {
	if h == nil {
		return WriteIdle
	}
	return WriteState(h.state.Load())
}

// AckDone consumes a WriteDone, moving the state back to WriteIdle.
// It reports whether a completion was consumed.
func (h *Handle) AckDone() bool {
	if h == nil {
		return false
	}
	return h.state.CompareAndSwap(uint32(WriteDone), uint32(WriteIdle))
}

// Present reports whether probe mode has seen the peripheral answer. Once
// true it stays true for the lifetime of the handle.
func (h *Handle) Present() bool {
	return h != nil && h.present.Load()
}

// Buffered returns the number of bytes waiting in the RX ring.
func (h *Handle) Buffered() int {
	if !h.Live() {
		return 0
	}
	return h.rx.Used()
}

// TxFree returns the remaining space in the TX ring in bytes.
func (h *Handle) TxFree() int {
	if !h.Live() {
		return 0
	}
	return h.tx.Size() - h.tx.Used()
}

// Stats returns a copy of the handle counters.
func (h *Handle) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{
		IRQCount: h.stats.irqCount.Load(),
		RxBytes:  h.stats.rxBytes.Load(),
		RxDrops:  h.stats.rxDrops.Load(),
		TxBytes:  h.stats.txBytes.Load(),
		TxDrops:  h.stats.txDrops.Load(),
	}
}

// receive stores one byte from the wire. Interrupt context only.
func (h *Handle) receive(b byte) {
	if !h.rx.Put(b) {
		h.stats.rxDrops.Add(1)
		return
	}
	h.stats.rxBytes.Add(1)
	if h.cfg.Probe {
		h.present.Store(true)
	}
}

// markWriting records the start of a transmission. Application context only.
func (h *Handle) markWriting() {
	h.state.Store(uint32(WriteWriting))
}

// markDone ends a transmission. Interrupt context only.
func (h *Handle) markDone() {
	h.state.CompareAndSwap(uint32(WriteWriting), uint32(WriteDone))
}
