// uartx/hostport/hostport.go

// Package hostport runs the uartx drivers against an operating-system serial
// port, typically a USB-serial adapter wired to the peripheral module.
//
// A reader goroutine and a writer goroutine stand in for the UART's receive
// and transmit interrupt sources. They raise an emulated interrupt line, so
// the driver's interrupt handler runs exactly as it does on target: one byte
// per receive-ready or transmit-ready event, never concurrently with itself.
package hostport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/jangala-dev/tinygo-modlink/uartx"
)

var (
	// ErrPolarityUnsupported is returned for inverted signalling, which OS serial drivers cannot do.
	ErrPolarityUnsupported = errors.New("hostport: inverted polarity not supported")
	// ErrNotOpen is returned by modem-line updates that fail because the port is closed.
	ErrNotOpen = errors.New("hostport: port not open")
)

// rxDepth mirrors the 32-entry receive FIFO of a PL011.
const rxDepth = 32

// readTimeout bounds how long the reader blocks, so Shutdown is prompt.
const readTimeout = 50 * time.Millisecond

// Opener opens a serial port. serial.Open is the default.
type Opener func(name string, mode *serial.Mode) (serial.Port, error)

var _ uartx.Hardware = (*Port)(nil)

// Port is a uartx.Hardware backed by an OS serial device.
type Port struct {
	name string
	open Opener
	line *uartx.IRQLine

	mu       sync.Mutex
	port     serial.Port
	cfg      uartx.Config
	rxIE     bool
	txIE     bool
	rxFIFO   []byte
	shifting bool
	rts, dtr bool
	overruns uint32

	txReg chan byte // transmit data register
	kick  chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

// New returns a Port for the named device. The device is opened by Configure.
func New(name string) *Port {
	return NewWithOpener(name, serial.Open)
}

// NewWithOpener is New with a custom opener.
func NewWithOpener(name string, open Opener) *Port {
	p := &Port{name: name, open: open}
	p.line = uartx.NewIRQLine(func() bool { return p.Status() != 0 })
	return p
}

// Name returns the device name.
func (p *Port) Name() string { return p.name }

// Overruns returns how many bytes arrived while the receive FIFO was full.
func (p *Port) Overruns() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overruns
}

func mode(cfg uartx.Config, rts, dtr bool) *serial.Mode {
	m := &serial.Mode{
		BaudRate: int(cfg.BaudRate),
		DataBits: int(cfg.Encoding.DataBits()),
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: rts,
			DTR: dtr,
		},
	}
	switch cfg.Encoding.Parity() {
	case uartx.ParityEven:
		m.Parity = serial.EvenParity
	case uartx.ParityOdd:
		m.Parity = serial.OddParity
	}
	if cfg.Encoding.StopBits() == 2 {
		m.StopBits = serial.TwoStopBits
	}
	return m
}

// Configure opens the device with cfg and starts the interrupt sources.
// A port that is already open is closed first.
func (p *Port) Configure(cfg uartx.Config) error {
	if cfg.Polarity == uartx.PolarityInverted {
		return ErrPolarityUnsupported
	}
	p.Shutdown()

	p.mu.Lock()
	sp, err := p.open(p.name, mode(cfg, p.rts, p.dtr))
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("hostport: open %s: %w", p.name, err)
	}
	if err := sp.SetReadTimeout(readTimeout); err != nil {
		sp.Close()
		p.mu.Unlock()
		return fmt.Errorf("hostport: set read timeout on %s: %w", p.name, err)
	}
	p.port = sp
	p.cfg = cfg
	p.rxIE, p.txIE = false, false
	p.rxFIFO = p.rxFIFO[:0]
	p.shifting = false
	p.txReg = make(chan byte, 1)
	p.kick = make(chan struct{}, 1)
	p.done = make(chan struct{})
	p.mu.Unlock()

	glog.Infof("hostport: %s open at %d baud %s", p.name, cfg.BaudRate, cfg.Encoding)

	p.wg.Add(2)
	go p.readLoop(sp, p.done)
	go p.writeLoop(sp, p.txReg, p.kick, p.done)
	return nil
}

// SetBaudRate changes the line speed of the open device.
func (p *Port) SetBaudRate(baud uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return
	}
	p.cfg.BaudRate = baud
	if err := p.port.SetMode(mode(p.cfg, p.rts, p.dtr)); err != nil {
		glog.Warningf("hostport: %s set baud %d: %v", p.name, baud, err)
		return
	}
	glog.V(2).Infof("hostport: %s baud %d", p.name, baud)
}

// Shutdown stops the interrupt sources and closes the device.
func (p *Port) Shutdown() {
	p.mu.Lock()
	sp, done := p.port, p.done
	p.port = nil
	p.rxIE, p.txIE = false, false
	p.mu.Unlock()
	if sp == nil {
		return
	}

	close(done)
	if err := sp.Close(); err != nil {
		glog.Warningf("hostport: close %s: %v", p.name, err)
	}
	p.wg.Wait()
	glog.Infof("hostport: %s closed", p.name)
}

func (p *Port) Attach(isr func(), priority uint8) { p.line.Attach(isr, priority) }
func (p *Port) Detach()                           { p.line.Detach() }
func (p *Port) Mask()                             { p.line.Mask() }
func (p *Port) Unmask()                           { p.line.Unmask() }

func (p *Port) Status() uartx.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	var st uartx.Status
	if p.port == nil {
		return st
	}
	if p.rxIE && len(p.rxFIFO) > 0 {
		st |= uartx.StatusRxReady
	}
	if p.txIE && len(p.txReg) == 0 {
		st |= uartx.StatusTxReady
	}
	return st
}

// Clear has nothing to acknowledge: both conditions are levels derived from
// the FIFO and data register state.
func (p *Port) Clear(uartx.Status) {}

func (p *Port) ReadData() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rxFIFO) == 0 {
		return 0
	}
	b := p.rxFIFO[0]
	p.rxFIFO = p.rxFIFO[1:]
	return b
}

// WriteData loads the transmit data register. Only the interrupt handler
// writes it, and only after Status reported it empty.
func (p *Port) WriteData(b byte) {
	p.mu.Lock()
	reg := p.txReg
	p.mu.Unlock()
	if reg == nil {
		return
	}
	select {
	case reg <- b:
	default:
		glog.Warningf("hostport: %s transmit register busy, byte dropped", p.name)
	}
}

func (p *Port) EnableRx(on bool) {
	p.mu.Lock()
	p.rxIE = on
	p.mu.Unlock()
}

// EnableTx gates transmit-ready. Enabling it raises the line if the data
// register is already empty.
func (p *Port) EnableTx(on bool) {
	p.mu.Lock()
	p.txIE = on
	kick := p.kick
	p.mu.Unlock()
	if on && kick != nil {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (p *Port) TxIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txReg) == 0 && !p.shifting
}

// TxNeedsStart is always false: transmit-ready is derived from the data
// register level, so arming the source is enough.
func (p *Port) TxNeedsStart() bool { return false }

func (p *Port) readLoop(sp serial.Port, done <-chan struct{}) {
	defer p.wg.Done()
	buf := make([]byte, 64)
	for {
		n, err := sp.Read(buf)
		select {
		case <-done:
			return
		default:
		}
		if err != nil {
			glog.Warningf("hostport: read %s: %v", p.name, err)
			return
		}
		for _, b := range buf[:n] {
			p.mu.Lock()
			if len(p.rxFIFO) >= rxDepth {
				p.overruns++
				p.mu.Unlock()
				glog.V(2).Infof("hostport: %s receive overrun", p.name)
				continue
			}
			p.rxFIFO = append(p.rxFIFO, b)
			p.mu.Unlock()
			p.line.Fire()
		}
	}
}

func (p *Port) writeLoop(sp serial.Port, reg chan byte, kick <-chan struct{}, done <-chan struct{}) {
	defer p.wg.Done()
	one := make([]byte, 1)
	for {
		select {
		case <-done:
			return
		case <-kick:
			p.line.Fire()
		case b := <-reg:
			p.mu.Lock()
			p.shifting = true
			p.mu.Unlock()

			// The register is free again: let the handler queue the next byte
			// while this one is on its way out.
			p.line.Fire()

			one[0] = b
			_, err := sp.Write(one)

			p.mu.Lock()
			p.shifting = false
			p.mu.Unlock()
			if err != nil {
				glog.Warningf("hostport: write %s: %v", p.name, err)
			}
			p.line.Fire()
		}
	}
}

// Signal names a modem-control output.
type Signal uint8

const (
	RTS Signal = iota
	DTR
)

// ModemLine drives RTS or DTR, usable as the module's enable line. The level
// is remembered while the device is closed and applied when it opens. The
// level is the logical modem state; TTL adapters usually invert it on the pin.
type ModemLine struct {
	p   *Port
	sig Signal
}

// ModemLine returns the modem-control output sig of p.
func (p *Port) ModemLine(sig Signal) *ModemLine {
	return &ModemLine{p: p, sig: sig}
}

// Configure is a no-op: modem outputs are always driven.
func (l *ModemLine) Configure() {}

// Set drives the signal.
func (l *ModemLine) Set(high bool) {
	if err := l.set(high); err != nil && !errors.Is(err, ErrNotOpen) {
		glog.Warningf("hostport: %s modem line: %v", l.p.name, err)
	}
}

func (l *ModemLine) set(high bool) error {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.sig == RTS {
		p.rts = high
	} else {
		p.dtr = high
	}
	if p.port == nil {
		return ErrNotOpen
	}
	if l.sig == RTS {
		return p.port.SetRTS(high)
	}
	return p.port.SetDTR(high)
}

// Level returns the last level set.
func (l *ModemLine) Level() bool {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	if l.sig == RTS {
		return l.p.rts
	}
	return l.p.dtr
}
