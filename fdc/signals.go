package fdc

import "fmt"

// Line is an output line of the controller.
type Line int

const (
	// IRQ is raised when a command completes.
	IRQ Line = iota
	// DRQ is raised while the data register is waiting to be read or written.
	DRQ
)

func (l Line) String() string {
	switch l {
	case IRQ:
		return "IRQ"
	case DRQ:
		return "DRQ"
	default:
		return fmt.Sprintf("Line(%d)", int(l))
	}
}

// Signal is one transition of an output line.
type Signal struct {
	Line   Line
	Active bool
}

func (s Signal) String() string {
	if s.Active {
		return s.Line.String() + "+"
	}
	return s.Line.String() + "-"
}

// SignalListener is called synchronously for every signal the controller
// emits.
type SignalListener func(Signal)

// emit passes a signal to every listener, or queues it if there aren't any.
func (ctl *Controller) emit(line Line, active bool) {
	signal := Signal{Line: line, Active: active}
	if len(ctl.listeners) == 0 {
		ctl.pending = append(ctl.pending, signal)
		return
	}
	for _, listener := range ctl.listeners {
		listener(signal)
	}
}

// Signals returns every signal queued since the last call, oldest first.
// Signals emitted while a listener is subscribed aren't queued.
func (ctl *Controller) Signals() []Signal {
	signals := ctl.pending
	ctl.pending = nil
	return signals
}

// Subscribe adds a listener that's called for every signal as it's emitted.
// From then on signals go only to listeners; anything already queued stays
// in the queue until [Controller.Signals] drains it.
func (ctl *Controller) Subscribe(listener SignalListener) {
	ctl.listeners = append(ctl.listeners, listener)
}
