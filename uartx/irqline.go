// uartx/irqline.go

package uartx

import "sync"

// IRQLine emulates a level-triggered interrupt line for hosted Hardware
// implementations, where interrupt sources are goroutines rather than silicon.
//
// The handler never runs concurrently with itself or inside a Mask/Unmask
// window. A Fire while masked is remembered and delivered by Unmask. The
// handler must not call Attach, Detach, Mask or Unmask.
type IRQLine struct {
	mu       sync.Mutex
	handler  func()
	priority uint8
	masked   bool
	pending  bool

	// Asserted reports whether any enabled condition is pending.
	Asserted func() bool
}

// maxBurst bounds how many times one Fire re-enters the handler while the
// line stays asserted.
const maxBurst = 256

// NewIRQLine returns a line whose level is read through asserted.
func NewIRQLine(asserted func() bool) *IRQLine {
	return &IRQLine{Asserted: asserted}
}

// Attach installs the handler and enables the line.
func (l *IRQLine) Attach(fn func(), priority uint8) {
	l.mu.Lock()
	l.handler = fn
	l.priority = priority
	l.pending = false
	l.mu.Unlock()
}

// Detach removes the handler, waiting for a running one to return.
func (l *IRQLine) Detach() {
	l.mu.Lock()
	l.handler = nil
	l.pending = false
	l.mu.Unlock()
}

// Attached reports whether a handler is installed.
func (l *IRQLine) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

// Priority returns the priority passed to Attach.
func (l *IRQLine) Priority() uint8 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priority
}

// Mask blocks handler entry. It waits for a running handler to return.
func (l *IRQLine) Mask() {
	l.mu.Lock()
	l.masked = true
	l.mu.Unlock()
}

// Unmask re-enables the line and delivers an interrupt raised while masked.
func (l *IRQLine) Unmask() {
	l.mu.Lock()
	l.masked = false
	deliver := l.pending
	l.pending = false
	l.mu.Unlock()
	if deliver {
		l.Fire()
	}
}

// Masked reports whether the line is masked.
func (l *IRQLine) Masked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.masked
}

// Step runs the handler once if the line is asserted. It reports whether the
// handler ran.
func (l *IRQLine) Step() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stepLocked()
}

// Fire runs the handler for as long as the line stays asserted and returns
// the number of handler entries.
func (l *IRQLine) Fire() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for n < maxBurst && l.stepLocked() {
		n++
	}
	return n
}

func (l *IRQLine) stepLocked() bool {
	if l.handler == nil {
		return false
	}
	if l.Asserted != nil && !l.Asserted() {
		return false
	}
	if l.masked {
		l.pending = true
		return false
	}
	l.handler()
	return true
}
