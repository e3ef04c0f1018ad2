package ansi

// Event is one action recognised by the parser, as a value.
type Event interface {
	isEvent()
}

type PrintEvent struct {
	Rune rune
}

type ExecuteEvent struct {
	Byte byte
}

type CSIEvent struct {
	Params        Params
	Intermediates string
	Final         byte
}

type OSCEvent struct {
	Params         []string
	BellTerminated bool
}

type ESCEvent struct {
	Intermediates string
	Final         byte
}

func (PrintEvent) isEvent()   {}
func (ExecuteEvent) isEvent() {}
func (CSIEvent) isEvent()     {}
func (OSCEvent) isEvent()     {}
func (ESCEvent) isEvent()     {}

// Recorder is a Performer that keeps every action as an Event.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Print(c rune) {
	r.Events = append(r.Events, PrintEvent{Rune: c})
}

func (r *Recorder) Execute(b byte) {
	r.Events = append(r.Events, ExecuteEvent{Byte: b})
}

func (r *Recorder) CSIDispatch(params Params, intermediates []byte, final byte) {
	var cp Params
	if params != nil {
		cp = make(Params, len(params))
		for i, group := range params {
			cp[i] = append([]int(nil), group...)
		}
	}
	r.Events = append(r.Events, CSIEvent{Params: cp, Intermediates: string(intermediates), Final: final})
}

func (r *Recorder) OSCDispatch(params [][]byte, bellTerminated bool) {
	strs := make([]string, len(params))
	for i, p := range params {
		strs[i] = string(p)
	}
	r.Events = append(r.Events, OSCEvent{Params: strs, BellTerminated: bellTerminated})
}

func (r *Recorder) ESCDispatch(intermediates []byte, final byte) {
	r.Events = append(r.Events, ESCEvent{Intermediates: string(intermediates), Final: final})
}

// Lex parses data from the ground state and returns the recognised events.
// A sequence left incomplete at the end of data produces no event.
func Lex(data []byte) []Event {
	var rec Recorder
	NewParser().Advance(&rec, data)
	return rec.Events
}

// Replay delivers events to perf in order.
func Replay(events []Event, perf Performer) {
	for _, ev := range events {
		switch ev := ev.(type) {
		case PrintEvent:
			perf.Print(ev.Rune)
		case ExecuteEvent:
			perf.Execute(ev.Byte)
		case CSIEvent:
			perf.CSIDispatch(ev.Params, []byte(ev.Intermediates), ev.Final)
		case OSCEvent:
			params := make([][]byte, len(ev.Params))
			for i, p := range ev.Params {
				params[i] = []byte(p)
			}
			perf.OSCDispatch(params, ev.BellTerminated)
		case ESCEvent:
			perf.ESCDispatch([]byte(ev.Intermediates), ev.Final)
		}
	}
}
