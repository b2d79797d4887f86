// peripheral/power.go

package peripheral

// Line is a single digital output, such as a GPIO pin or a modem-control
// signal on a serial adapter.
type Line interface {
	// Configure switches the line to a driven output.
	Configure()
	// Set drives the line high or low.
	Set(high bool)
}

// Power drives the enable line that runs the peripheral or holds it in reset.
// A nil *Power is valid and does nothing, for boards without the line.
type Power struct {
	line      Line
	activeLow bool

	configured bool
	driven     bool
	active     bool
}

// NewPower wraps line. With activeLow the module runs while the line is low,
// which is how the reference companion modules are wired.
func NewPower(line Line, activeLow bool) *Power {
	return &Power{line: line, activeLow: activeLow}
}

// Configure makes the line an output, once. The inactive level is latched
// before the output driver is switched on so the module never sees a run
// pulse during start-up.
func (p *Power) Configure() {
	if p == nil || p.configured {
		return
	}
	p.line.Set(p.level(false))
	p.line.Configure()
	p.line.Set(p.level(false))
	p.configured, p.driven, p.active = true, true, false
}

// Enable lets the module run.
func (p *Power) Enable() { p.set(true) }

// Disable holds the module off.
func (p *Power) Disable() { p.set(false) }

// Active reports whether the module is being let run.
func (p *Power) Active() bool { return p != nil && p.active }

func (p *Power) set(on bool) {
	if p == nil {
		return
	}
	p.Configure()
	if p.driven && p.active == on {
		return
	}
	p.line.Set(p.level(on))
	p.driven, p.active = true, on
}

func (p *Power) level(on bool) bool {
	return on != p.activeLow
}
