// uartx/sim.go

package uartx

import "sync"

var _ DMAHardware = (*SimPort)(nil)

// SimPort is a simulated UART with a DMA engine. Nothing happens on its own:
// the caller puts bytes on the wire with Inject, runs the interrupt with Step
// or Run, and finishes DMA bursts with CompleteTxDMA. This keeps host tests
// deterministic while still going through the real interrupt handler.
//
// By default transmit-ready is a level: pending whenever the source is armed.
// NewEdgeSimPort models a PL011 instead, where it latches only when the data
// register empties after a write and stays clear until the next write.
type SimPort struct {
	line *IRQLine
	edge bool

	mu         sync.Mutex
	cfg        Config
	baud       uint32
	configured bool
	rxIE, txIE bool
	txRaw      bool // latched empty edge, edge mode only
	shiftBusy  bool

	rxFIFO []byte // received, not yet read by the handler
	wire   []byte // transmitted
	clears map[Status]int

	txDMA     []byte
	txDMADone bool
	rxDMABuf  []byte
	rxDMAPos  int
	rxDMADone bool
}

// NewSimPort returns an unconfigured simulated port.
func NewSimPort() *SimPort {
	p := &SimPort{clears: make(map[Status]int)}
	p.line = NewIRQLine(func() bool { return p.Status() != 0 })
	return p
}

// NewEdgeSimPort returns an unconfigured simulated port with an
// edge-triggered transmit-ready source.
func NewEdgeSimPort() *SimPort {
	p := NewSimPort()
	p.edge = true
	return p
}

// Line exposes the emulated interrupt line.
func (p *SimPort) Line() *IRQLine { return p.line }

func (p *SimPort) Configure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.baud = cfg.BaudRate
	p.configured = true
	p.rxIE, p.txIE = false, false
	p.txRaw = false
	p.rxFIFO = p.rxFIFO[:0]
	return nil
}

func (p *SimPort) SetBaudRate(baud uint32) {
	p.mu.Lock()
	p.baud = baud
	p.mu.Unlock()
}

func (p *SimPort) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configured = false
	p.rxIE, p.txIE = false, false
	p.txRaw = false
	p.rxFIFO = p.rxFIFO[:0]
	p.txDMA, p.txDMADone = nil, false
	p.rxDMABuf, p.rxDMAPos, p.rxDMADone = nil, 0, false
}

func (p *SimPort) Attach(isr func(), priority uint8) { p.line.Attach(isr, priority) }
func (p *SimPort) Detach()                           { p.line.Detach() }
func (p *SimPort) Mask()                             { p.line.Mask() }
func (p *SimPort) Unmask()                           { p.line.Unmask() }

func (p *SimPort) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	var st Status
	if p.rxIE && len(p.rxFIFO) > 0 {
		st |= StatusRxReady
	}
	if p.txIE && (!p.edge || p.txRaw) {
		st |= StatusTxReady
	}
	if p.rxDMADone {
		st |= StatusRxDMADone
	}
	if p.txDMADone {
		st |= StatusTxDMADone
	}
	return st
}

func (p *SimPort) Clear(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for bit := StatusRxReady; bit <= StatusTxDMADone; bit <<= 1 {
		if s&bit != 0 {
			p.clears[bit]++
		}
	}
	if s&StatusTxReady != 0 {
		p.txRaw = false
	}
	if s&StatusRxDMADone != 0 {
		p.rxDMADone = false
	}
	if s&StatusTxDMADone != 0 {
		p.txDMADone = false
	}
}

func (p *SimPort) ReadData() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rxFIFO) == 0 {
		return 0
	}
	b := p.rxFIFO[0]
	p.rxFIFO = p.rxFIFO[1:]
	return b
}

// WriteData puts b on the wire. The data register empties at once, which in
// edge mode latches transmit-ready.
func (p *SimPort) WriteData(b byte) {
	p.mu.Lock()
	p.wire = append(p.wire, b)
	p.txRaw = p.edge
	p.mu.Unlock()
}

func (p *SimPort) EnableRx(on bool) {
	p.mu.Lock()
	p.rxIE = on
	p.mu.Unlock()
}

func (p *SimPort) EnableTx(on bool) {
	p.mu.Lock()
	p.txIE = on
	p.mu.Unlock()
}

func (p *SimPort) TxIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.shiftBusy
}

func (p *SimPort) TxNeedsStart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.edge && p.configured && !p.txRaw
}

func (p *SimPort) StartTxDMA(buf []byte) {
	p.mu.Lock()
	p.txDMA = buf
	p.mu.Unlock()
}

func (p *SimPort) StartRxDMA(buf []byte) {
	p.mu.Lock()
	p.rxDMABuf = buf
	p.rxDMAPos = 0
	p.mu.Unlock()
}

func (p *SimPort) RxDMAPosition() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rxDMAPos
}

// ---------- Simulation controls ----------

// Inject puts bytes on the receive wire. With RX DMA running they land in the
// DMA buffer; otherwise they queue in the receive register. Bytes sent to an
// unconfigured port are lost.
func (p *SimPort) Inject(data ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.configured {
		return
	}
	if len(p.rxDMABuf) > 0 {
		for _, b := range data {
			p.rxDMABuf[p.rxDMAPos] = b
			p.rxDMAPos = (p.rxDMAPos + 1) % len(p.rxDMABuf)
		}
		p.rxDMADone = p.rxDMADone || len(data) > 0
		return
	}
	p.rxFIFO = append(p.rxFIFO, data...)
}

// CompleteTxDMA finishes the running burst: its bytes reach the wire and
// StatusTxDMADone is raised. It reports whether a burst was running.
func (p *SimPort) CompleteTxDMA() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txDMA == nil {
		return false
	}
	p.wire = append(p.wire, p.txDMA...)
	p.txDMA = nil
	p.txDMADone = true
	return true
}

// SetShifterBusy holds TxIdle false, as if the last byte were still shifting out.
func (p *SimPort) SetShifterBusy(busy bool) {
	p.mu.Lock()
	p.shiftBusy = busy
	p.mu.Unlock()
}

// Step runs the interrupt handler once if an enabled condition is pending.
func (p *SimPort) Step() bool { return p.line.Step() }

// Run runs the interrupt handler until nothing enabled is pending.
func (p *SimPort) Run() int { return p.line.Fire() }

// Transmitted returns a copy of every byte written to the wire so far.
func (p *SimPort) Transmitted() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.wire...)
}

// ClearCount returns how many times condition s was acknowledged.
func (p *SimPort) ClearCount(s Status) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears[s]
}

// Baud returns the programmed baud rate.
func (p *SimPort) Baud() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

// Configured reports whether the port is configured and not shut down.
func (p *SimPort) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured
}

// RxEnabled and TxEnabled report the interrupt source gates.
func (p *SimPort) RxEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rxIE
}

func (p *SimPort) TxEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txIE
}

// Config returns the configuration last passed to Configure.
func (p *SimPort) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}
