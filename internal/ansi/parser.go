// Package ansi turns a raw terminal output byte stream into grid mutations.
//
// Parsing is split in two stages. Parser is a byte-level state machine that
// reports what it recognised to a Performer and never touches a grid.
// Interpreter is the Performer that applies those actions to a grid.Grid.
package ansi

import "unicode/utf8"

const (
	maxParams        = 32
	maxParamValue    = 65535
	maxIntermediates = 2
	maxOSCBytes      = 4096
	maxOSCParams     = 16
)

// Performer receives the actions recognised by a Parser. Slices passed to
// a Performer are only valid for the duration of the call.
type Performer interface {
	Print(r rune)
	Execute(b byte)
	CSIDispatch(params Params, intermediates []byte, final byte)
	OSCDispatch(params [][]byte, bellTerminated bool)
	ESCDispatch(intermediates []byte, final byte)
}

// Params are CSI parameters. Each entry holds a parameter followed by any
// colon-separated subparameters.
type Params [][]int

// Get returns parameter i, or def when it is missing or zero.
func (p Params) Get(i, def int) int {
	if i >= len(p) || len(p[i]) == 0 || p[i][0] == 0 {
		return def
	}
	return p[i][0]
}

// Raw returns parameter i, or 0 when it is missing.
func (p Params) Raw(i int) int {
	if i >= len(p) || len(p[i]) == 0 {
		return 0
	}
	return p[i][0]
}

type state uint8

const (
	stateGround state = iota
	stateEscape
	stateEscapeIntermediate
	stateCSIEntry
	stateCSIParam
	stateCSIIntermediate
	stateCSIIgnore
	stateOSCString
	stateDCSEntry
	stateDCSPassthrough
	stateDCSIgnore
	stateSOSPMAPCString
)

// Parser is a VT500-style escape sequence state machine. Partial sequences
// and partial UTF-8 encodings are retained between calls to Advance, so a
// stream may be split at any byte boundary.
type Parser struct {
	state state

	vals     []int
	colon    []bool
	hasParam bool
	ignore   bool

	intermediates []byte
	osc           []byte

	utf8Buf  [utf8.UTFMax]byte
	utf8Len  int
	utf8Need int
}

// NewParser returns a parser in the ground state.
func NewParser() *Parser {
	return &Parser{
		vals:          make([]int, 0, maxParams),
		colon:         make([]bool, 0, maxParams),
		intermediates: make([]byte, 0, maxIntermediates),
		osc:           make([]byte, 0, 256),
	}
}

// Advance feeds data through the state machine, reporting to perf.
func (p *Parser) Advance(perf Performer, data []byte) {
	for _, b := range data {
		p.advance(perf, b)
	}
}

func (p *Parser) advance(perf Performer, b byte) {
	if p.state == stateGround && (p.utf8Len > 0 || b >= 0x80) {
		p.utf8Byte(perf, b)
		return
	}

	// Transitions valid from every state.
	switch b {
	case 0x18, 0x1A: // CAN, SUB
		p.abortString(perf)
		perf.Execute(b)
		p.state = stateGround
		return
	case 0x1B:
		p.abortString(perf)
		p.clear()
		p.state = stateEscape
		return
	}

	switch p.state {
	case stateGround:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b < 0x7F:
			perf.Print(rune(b))
		}

	case stateEscape:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b < 0x30:
			p.collect(b)
			p.state = stateEscapeIntermediate
		case b == '[':
			p.state = stateCSIEntry
		case b == ']':
			p.osc = p.osc[:0]
			p.state = stateOSCString
		case b == 'P':
			p.state = stateDCSEntry
		case b == 'X', b == '^', b == '_':
			p.state = stateSOSPMAPCString
		case b < 0x7F:
			perf.ESCDispatch(p.intermediates, b)
			p.state = stateGround
		}

	case stateEscapeIntermediate:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b < 0x30:
			p.collect(b)
		case b < 0x7F:
			if !p.ignore {
				perf.ESCDispatch(p.intermediates, b)
			}
			p.state = stateGround
		}

	case stateCSIEntry, stateCSIParam:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b < 0x30:
			p.collect(b)
			p.state = stateCSIIntermediate
		case b <= '9':
			p.paramDigit(b)
			p.state = stateCSIParam
		case b == ';':
			p.paramSep(false)
			p.state = stateCSIParam
		case b == ':':
			p.paramSep(true)
			p.state = stateCSIParam
		case b < 0x40:
			// Private markers are only valid before any parameter.
			if p.state == stateCSIEntry {
				p.collect(b)
				p.state = stateCSIParam
			} else {
				p.state = stateCSIIgnore
			}
		case b < 0x7F:
			p.dispatchCSI(perf, b)
		}

	case stateCSIIntermediate:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b < 0x30:
			p.collect(b)
		case b < 0x40:
			p.state = stateCSIIgnore
		case b < 0x7F:
			p.dispatchCSI(perf, b)
		}

	case stateCSIIgnore:
		switch {
		case b < 0x20:
			perf.Execute(b)
		case b >= 0x40 && b < 0x7F:
			p.state = stateGround
		}

	case stateOSCString:
		switch {
		case b == 0x07:
			p.dispatchOSC(perf, true)
			p.state = stateGround
		case b < 0x20:
			// ignored
		default:
			if len(p.osc) < maxOSCBytes {
				p.osc = append(p.osc, b)
			}
		}

	case stateDCSEntry:
		if b >= 0x40 && b < 0x7F {
			p.state = stateDCSPassthrough
		} else if b == 0x3A {
			p.state = stateDCSIgnore
		}

	case stateDCSPassthrough, stateDCSIgnore, stateSOSPMAPCString:
		// Consumed until ST (ESC \), handled above.
	}
}

// abortString terminates an OSC string interrupted by ESC, CAN or SUB.
// ESC \ is the normal string terminator so the OSC is still dispatched.
func (p *Parser) abortString(perf Performer) {
	if p.state == stateOSCString {
		p.dispatchOSC(perf, false)
	}
}

func (p *Parser) clear() {
	p.vals = p.vals[:0]
	p.colon = p.colon[:0]
	p.hasParam = false
	p.ignore = false
	p.intermediates = p.intermediates[:0]
}

func (p *Parser) collect(b byte) {
	if len(p.intermediates) >= maxIntermediates {
		p.ignore = true
		return
	}
	p.intermediates = append(p.intermediates, b)
}

func (p *Parser) paramDigit(b byte) {
	if len(p.vals) == 0 {
		p.vals = append(p.vals, 0)
		p.colon = append(p.colon, false)
	}
	p.hasParam = true
	last := len(p.vals) - 1
	v := p.vals[last]*10 + int(b-'0')
	if v > maxParamValue {
		v = maxParamValue
	}
	p.vals[last] = v
}

func (p *Parser) paramSep(colon bool) {
	if len(p.vals) == 0 {
		p.vals = append(p.vals, 0)
		p.colon = append(p.colon, false)
	}
	p.hasParam = true
	if len(p.vals) >= maxParams {
		p.ignore = true
		return
	}
	p.vals = append(p.vals, 0)
	p.colon = append(p.colon, colon)
}

func (p *Parser) params() Params {
	if !p.hasParam {
		return nil
	}
	params := make(Params, 0, len(p.vals))
	for i, v := range p.vals {
		if p.colon[i] && len(params) > 0 {
			params[len(params)-1] = append(params[len(params)-1], v)
			continue
		}
		params = append(params, []int{v})
	}
	return params
}

func (p *Parser) dispatchCSI(perf Performer, final byte) {
	if !p.ignore {
		perf.CSIDispatch(p.params(), p.intermediates, final)
	}
	p.state = stateGround
}

func (p *Parser) dispatchOSC(perf Performer, bell bool) {
	params := make([][]byte, 0, 2)
	start := 0
	for i, b := range p.osc {
		if b == ';' && len(params) < maxOSCParams-1 {
			params = append(params, p.osc[start:i])
			start = i + 1
		}
	}
	params = append(params, p.osc[start:])
	perf.OSCDispatch(params, bell)
	p.osc = p.osc[:0]
}

// utf8Byte decodes multi-byte UTF-8 in the ground state. Invalid or
// interrupted encodings print U+FFFD.
func (p *Parser) utf8Byte(perf Performer, b byte) {
	if p.utf8Len == 0 {
		switch {
		case b&0xE0 == 0xC0:
			p.utf8Need = 2
		case b&0xF0 == 0xE0:
			p.utf8Need = 3
		case b&0xF8 == 0xF0:
			p.utf8Need = 4
		default:
			perf.Print(utf8.RuneError)
			return
		}
		p.utf8Buf[0] = b
		p.utf8Len = 1
		return
	}

	if b&0xC0 != 0x80 {
		p.utf8Len = 0
		perf.Print(utf8.RuneError)
		p.advance(perf, b)
		return
	}

	p.utf8Buf[p.utf8Len] = b
	p.utf8Len++
	if p.utf8Len < p.utf8Need {
		return
	}
	r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
	p.utf8Len = 0
	perf.Print(r)
}
