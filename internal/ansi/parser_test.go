package ansi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{
			name:  "plain text and controls",
			input: "hi\r\n",
			want: []Event{
				PrintEvent{Rune: 'h'},
				PrintEvent{Rune: 'i'},
				ExecuteEvent{Byte: '\r'},
				ExecuteEvent{Byte: '\n'},
			},
		},
		{
			name:  "cursor position",
			input: "\x1b[12;40H",
			want:  []Event{CSIEvent{Params: Params{{12}, {40}}, Final: 'H'}},
		},
		{
			name:  "no params",
			input: "\x1b[m",
			want:  []Event{CSIEvent{Final: 'm'}},
		},
		{
			name:  "private mode",
			input: "\x1b[?1049h",
			want:  []Event{CSIEvent{Params: Params{{1049}}, Intermediates: "?", Final: 'h'}},
		},
		{
			name:  "colon subparams",
			input: "\x1b[38:2:10:20:30m",
			want:  []Event{CSIEvent{Params: Params{{38, 2, 10, 20, 30}}, Final: 'm'}},
		},
		{
			name:  "empty leading param",
			input: "\x1b[;5H",
			want:  []Event{CSIEvent{Params: Params{{0}, {5}}, Final: 'H'}},
		},
		{
			name:  "osc bell terminated",
			input: "\x1b]0;my title\x07",
			want:  []Event{OSCEvent{Params: []string{"0", "my title"}, BellTerminated: true}},
		},
		{
			name:  "osc string terminator",
			input: "\x1b]2;t\x1b\\",
			want: []Event{
				OSCEvent{Params: []string{"2", "t"}},
				ESCEvent{Final: '\\'},
			},
		},
		{
			name:  "esc with intermediate",
			input: "\x1b(B",
			want:  []Event{ESCEvent{Intermediates: "(", Final: 'B'}},
		},
		{
			name:  "control inside csi executes",
			input: "\x1b[1\n2A",
			want: []Event{
				ExecuteEvent{Byte: '\n'},
				CSIEvent{Params: Params{{12}}, Final: 'A'},
			},
		},
		{
			name:  "cancel aborts sequence",
			input: "\x1b[12\x18x",
			want: []Event{
				ExecuteEvent{Byte: 0x18},
				PrintEvent{Rune: 'x'},
			},
		},
		{
			name:  "dcs is swallowed",
			input: "\x1bPq#0;2;0;0;0\x1b\\ok",
			want: []Event{
				ESCEvent{Final: '\\'},
				PrintEvent{Rune: 'o'},
				PrintEvent{Rune: 'k'},
			},
		},
		{
			name:  "utf8",
			input: "é世",
			want:  []Event{PrintEvent{Rune: 'é'}, PrintEvent{Rune: '世'}},
		},
		{
			name:  "invalid utf8",
			input: "\xffa\xc3",
			want:  []Event{PrintEvent{Rune: '�'}, PrintEvent{Rune: 'a'}},
		},
		{
			name:  "truncated utf8 before escape",
			input: "\xe4\xb8\x1b[A",
			want:  []Event{PrintEvent{Rune: '�'}, CSIEvent{Final: 'A'}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lex([]byte(tt.input)))
		})
	}
}

func TestParser_SplitAcrossCalls(t *testing.T) {
	input := []byte("a\x1b[38;2;1;2;3mé\x1b]0;x\x07世")
	want := Lex(input)

	for split := 1; split < len(input); split++ {
		var rec Recorder
		p := NewParser()
		p.Advance(&rec, input[:split])
		p.Advance(&rec, input[split:])
		require.Equal(t, want, rec.Events, "split at %d", split)
	}
}

func TestParser_ByteAtATime(t *testing.T) {
	input := []byte("\x1b[?25l\x1b[2J\x1b[1;1Hhello\x1b[0m")
	want := Lex(input)

	var rec Recorder
	p := NewParser()
	for _, b := range input {
		p.Advance(&rec, []byte{b})
	}
	assert.Equal(t, want, rec.Events)
}

func TestParser_Limits(t *testing.T) {
	t.Run("param value saturates", func(t *testing.T) {
		events := Lex([]byte("\x1b[99999999A"))
		require.Len(t, events, 1)
		assert.Equal(t, maxParamValue, events[0].(CSIEvent).Params.Raw(0))
	})

	t.Run("too many params ignored", func(t *testing.T) {
		seq := "\x1b["
		for i := 0; i < maxParams+2; i++ {
			seq += "1;"
		}
		seq += "mz"
		assert.Equal(t, []Event{PrintEvent{Rune: 'z'}}, Lex([]byte(seq)))
	})

	t.Run("private marker after param ignored", func(t *testing.T) {
		assert.Equal(t, []Event{PrintEvent{Rune: 'z'}}, Lex([]byte("\x1b[1?hz")))
	})
}

func TestParams(t *testing.T) {
	p := Params{{0}, {7}, {38, 5, 1}}
	assert.Equal(t, 1, p.Get(0, 1))
	assert.Equal(t, 7, p.Get(1, 1))
	assert.Equal(t, 38, p.Raw(2))
	assert.Equal(t, 3, p.Get(5, 3))
	assert.Equal(t, 0, p.Raw(5))
}

func TestReplay(t *testing.T) {
	input := []byte("\x1b[1mA\x1b]2;t\x07\x1b7\r")
	events := Lex(input)

	var rec Recorder
	Replay(events, &rec)
	assert.Equal(t, events, rec.Events)
}
