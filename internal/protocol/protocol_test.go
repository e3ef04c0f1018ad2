package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/noirtty/noirtty/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame(seq uint64) *Frame {
	g := grid.New(4, 2)
	a := grid.DefaultAttributes()
	a.Bold = true
	a.FG = grid.RGB{1, 2, 3}
	g.SetAttributes(a)
	g.Print('h')
	g.SetAttributes(grid.DefaultAttributes())
	g.Print('é')
	f := NewFrame(seq, g.Snapshot())
	f.AppCursorKeys = true
	return f
}

func allMessages() []Message {
	return []Message{
		sampleFrame(7),
		&Key{Data: []byte("a\x1b[A")},
		&Resize{Cols: 120, Rows: 40},
		&Paste{Text: "multi\nline"},
		&Scroll{Delta: -3},
		&Quality{MinIntervalMS: 50},
		&Hello{Session: "s1", Cols: 80, Rows: 24, Format: FormatBinary},
		&Welcome{Session: "s1"},
		&Error{Message: "spawn failed"},
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	codecs := []Codec{JSONCodec{}, BinaryCodec{}, BinaryCodec{Compress: true}}
	for _, codec := range codecs {
		for _, msg := range allMessages() {
			t.Run(codec.Name()+"/"+msg.MessageType(), func(t *testing.T) {
				data, err := codec.Encode(msg)
				require.NoError(t, err)

				got, err := codec.Decode(data)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			})
		}
	}
}

func TestBinaryCodec_CompressesLargeFrames(t *testing.T) {
	f := NewFrame(1, grid.New(120, 40).Snapshot())

	plain, err := BinaryCodec{}.Encode(f)
	require.NoError(t, err)
	packed, err := BinaryCodec{Compress: true}.Encode(f)
	require.NoError(t, err)

	assert.Equal(t, flagZstd, packed[1])
	assert.Less(t, len(packed), len(plain)/10)

	// The plain codec still reads compressed payloads.
	got, err := BinaryCodec{}.Decode(packed)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestJSONCodec_WireShape(t *testing.T) {
	data, err := JSONCodec{}.Encode(sampleFrame(3))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "frame", raw["type"])
	assert.Equal(t, float64(3), raw["sequence"])
	assert.Equal(t, float64(0), raw["cursor_row"])
	assert.Equal(t, float64(2), raw["cursor_col"])
	assert.Equal(t, true, raw["cursor_visible"])

	cells := raw["cells"].([]any)
	require.Len(t, cells, 8)
	first := cells[0].(map[string]any)
	assert.Equal(t, "h", first["ch"])
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, first["fg"])
	assert.Equal(t, true, first["bold"])
	assert.Contains(t, first, "italic")
	assert.Contains(t, first, "underline")

	data, err = JSONCodec{}.Encode(&Resize{Cols: 80, Rows: 24})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resize","cols":80,"rows":24}`, string(data))

	data, err = JSONCodec{}.Encode(&Key{Data: []byte("hi")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"input","data":"aGk="}`, string(data))
}

func TestJSONCodec_DecodeClientMessage(t *testing.T) {
	msg, err := JSONCodec{}.Decode([]byte(`{"type":"quality","min_interval_ms":100}`))
	require.NoError(t, err)
	assert.Equal(t, &Quality{MinIntervalMS: 100}, msg)

	msg, err = JSONCodec{}.Decode([]byte(`{"type":"frame","sequence":1,"cols":1,"rows":1,"cells":[{"ch":"","fg":[0,0,0],"bg":[0,0,0]}]}`))
	require.NoError(t, err)
	assert.Equal(t, ' ', msg.(*Frame).Cells[0].Char)
}

func TestDecodeErrors(t *testing.T) {
	frameBytes, err := BinaryCodec{}.Encode(sampleFrame(1))
	require.NoError(t, err)

	tests := []struct {
		name  string
		codec Codec
		input []byte
		want  error
	}{
		{"json truncated", JSONCodec{}, []byte(`{"type":"resize","cols":8`), ErrTruncated},
		{"json unknown type", JSONCodec{}, []byte(`{"type":"bogus"}`), ErrUnknownType},
		{"json garbage", JSONCodec{}, []byte(`not json`), ErrMalformed},
		{"json wrong field type", JSONCodec{}, []byte(`{"type":"resize","cols":"x","rows":1}`), ErrMalformed},
		{"json zero resize", JSONCodec{}, []byte(`{"type":"resize","cols":0,"rows":24}`), ErrMalformed},
		{"json cell count mismatch", JSONCodec{}, []byte(`{"type":"frame","sequence":1,"cols":2,"rows":2,"cells":[]}`), ErrMalformed},
		{"binary empty", BinaryCodec{}, nil, ErrTruncated},
		{"binary unknown tag", BinaryCodec{}, []byte{0xEE, 0}, ErrUnknownType},
		{"binary truncated frame", BinaryCodec{}, frameBytes[:len(frameBytes)-3], ErrTruncated},
		{"binary trailing bytes", BinaryCodec{}, append(append([]byte(nil), frameBytes...), 0), ErrMalformed},
		{"binary truncated string", BinaryCodec{}, []byte{tagPaste, 0, 0, 0, 0, 9, 'a'}, ErrTruncated},
		{"binary bad zstd", BinaryCodec{}, []byte{tagFrame, flagZstd, 1, 2, 3}, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.codec.Decode(tt.input)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsProtocolError(err))
		})
	}
}

type unknownMessage struct{}

func (unknownMessage) MessageType() string { return "unknown" }

func TestEncode_UnknownMessage(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, BinaryCodec{}} {
		_, err := codec.Encode(unknownMessage{})
		assert.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestCodecFor(t *testing.T) {
	c, err := CodecFor("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, c.Name())

	c, err = CodecFor("binary")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, c.Name())

	_, err = CodecFor("xml")
	assert.Error(t, err)
}

func TestFraming(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("one")))
		require.NoError(t, WriteFrame(&buf, nil))
		require.NoError(t, WriteFrame(&buf, []byte("three")))

		assert.Equal(t, []byte{0, 0, 0, 3, 'o', 'n', 'e'}, buf.Bytes()[:7])

		for _, want := range []string{"one", "", "three"} {
			got, err := ReadFrame(&buf, 0)
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		}
		_, err := ReadFrame(&buf, 0)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("truncated prefix", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0}), 0)
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 'a'}), 0)
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 1, 0}), 16)
		assert.ErrorIs(t, err, ErrTooLarge)

		err = WriteFrame(io.Discard, make([]byte, MaxMessageSize+1))
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("codec payloads over a stream", func(t *testing.T) {
		var buf bytes.Buffer
		codec := BinaryCodec{Compress: true}
		for _, msg := range allMessages() {
			data, err := codec.Encode(msg)
			require.NoError(t, err)
			require.NoError(t, WriteFrame(&buf, data))
		}
		var types []string
		for {
			data, err := ReadFrame(&buf, 0)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			msg, err := codec.Decode(data)
			require.NoError(t, err)
			types = append(types, msg.MessageType())
		}
		assert.Equal(t, "frame,input,resize,paste,scroll,quality,hello,welcome,error", strings.Join(types, ","))
	})
}
