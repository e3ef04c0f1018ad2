package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/noirtty/noirtty/internal/grid"
)

// Binary message tags. Values are part of the wire format.
const (
	tagFrame byte = iota + 1
	tagInput
	tagResize
	tagPaste
	tagScroll
	tagQuality
	tagHello
	tagWelcome
	tagError
)

const (
	flagZstd byte = 1 << iota
)

const (
	frameCursorVisible byte = 1 << iota
	frameAppCursor
)

const (
	attrBold byte = 1 << iota
	attrItalic
	attrUnderline
	attrInverse
)

const (
	binaryHeaderSize = 2
	frameHeaderSize  = 8 + 2*4 + 1
	cellSize         = 4 + 3 + 3 + 1
	// frames below this size are not worth compressing
	compressThreshold = 512
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(MaxMessageSize))
)

// BinaryCodec is a compact tagged encoding with fixed-width big-endian
// fields. With Compress set, frame bodies are zstd compressed; decoding
// accepts both forms regardless of Compress.
type BinaryCodec struct {
	Compress bool
}

func (BinaryCodec) Name() string { return FormatBinary }

func (c BinaryCodec) Encode(msg Message) ([]byte, error) {
	var tag byte
	var body []byte
	switch m := msg.(type) {
	case *Frame:
		tag = tagFrame
		body = appendFrame(make([]byte, 0, frameHeaderSize+len(m.Cells)*cellSize), m)
	case *Key:
		tag = tagInput
		body = appendBytes(nil, m.Data)
	case *Resize:
		tag = tagResize
		body = binary.BigEndian.AppendUint16(nil, uint16(m.Cols))
		body = binary.BigEndian.AppendUint16(body, uint16(m.Rows))
	case *Paste:
		tag = tagPaste
		body = appendBytes(nil, []byte(m.Text))
	case *Scroll:
		tag = tagScroll
		body = binary.BigEndian.AppendUint32(nil, uint32(int32(m.Delta)))
	case *Quality:
		tag = tagQuality
		body = binary.BigEndian.AppendUint32(nil, uint32(m.MinIntervalMS))
	case *Hello:
		tag = tagHello
		body = appendBytes(nil, []byte(m.Session))
		body = binary.BigEndian.AppendUint16(body, uint16(m.Cols))
		body = binary.BigEndian.AppendUint16(body, uint16(m.Rows))
		body = appendBytes(body, []byte(m.Format))
	case *Welcome:
		tag = tagWelcome
		body = appendBytes(nil, []byte(m.Session))
	case *Error:
		tag = tagError
		body = appendBytes(nil, []byte(m.Message))
	default:
		return nil, &ProtocolError{Op: "encode", Err: fmt.Errorf("%w: %T", ErrUnknownType, msg)}
	}

	var flags byte
	if c.Compress && tag == tagFrame && len(body) >= compressThreshold {
		body = zstdEncoder.EncodeAll(body, make([]byte, 0, len(body)/4))
		flags |= flagZstd
	}
	if len(body)+binaryHeaderSize > MaxMessageSize {
		return nil, &ProtocolError{Op: "encode", Err: ErrTooLarge}
	}

	out := make([]byte, 0, binaryHeaderSize+len(body))
	out = append(out, tag, flags)
	return append(out, body...), nil
}

func appendFrame(b []byte, f *Frame) []byte {
	b = binary.BigEndian.AppendUint64(b, f.Sequence)
	b = binary.BigEndian.AppendUint16(b, uint16(f.Cols))
	b = binary.BigEndian.AppendUint16(b, uint16(f.Rows))
	b = binary.BigEndian.AppendUint16(b, uint16(f.CursorRow))
	b = binary.BigEndian.AppendUint16(b, uint16(f.CursorCol))
	var flags byte
	if f.CursorVisible {
		flags |= frameCursorVisible
	}
	if f.AppCursorKeys {
		flags |= frameAppCursor
	}
	b = append(b, flags)
	for _, c := range f.Cells {
		b = binary.BigEndian.AppendUint32(b, uint32(c.Char))
		b = append(b, c.FG[0], c.FG[1], c.FG[2], c.BG[0], c.BG[1], c.BG[2], cellAttrs(c))
	}
	return b
}

func cellAttrs(c grid.Cell) byte {
	var a byte
	if c.Bold {
		a |= attrBold
	}
	if c.Italic {
		a |= attrItalic
	}
	if c.Underline {
		a |= attrUnderline
	}
	if c.Inverse {
		a |= attrInverse
	}
	return a
}

func appendBytes(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}

func (BinaryCodec) Decode(data []byte) (Message, error) {
	if len(data) < binaryHeaderSize {
		return nil, decodeError(ErrTruncated)
	}
	tag, flags := data[0], data[1]
	body := data[binaryHeaderSize:]
	if flags&flagZstd != 0 {
		var err error
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, decodeError(fmt.Errorf("%w: zstd: %v", ErrMalformed, err))
		}
	}

	r := reader{b: body}
	var msg Message
	switch tag {
	case tagFrame:
		f := &Frame{
			Sequence:  r.u64(),
			Cols:      int(r.u16()),
			Rows:      int(r.u16()),
			CursorRow: int(r.u16()),
			CursorCol: int(r.u16()),
		}
		flags := r.u8()
		f.CursorVisible = flags&frameCursorVisible != 0
		f.AppCursorKeys = flags&frameAppCursor != 0
		if r.err != nil {
			return nil, decodeError(r.err)
		}
		if err := checkDimensions(f.Cols, f.Rows); err != nil {
			return nil, err
		}
		n := f.Cols * f.Rows
		if len(r.b) != n*cellSize {
			if len(r.b) < n*cellSize {
				return nil, decodeError(ErrTruncated)
			}
			return nil, decodeError(fmt.Errorf("%w: trailing bytes", ErrMalformed))
		}
		f.Cells = make([]grid.Cell, n)
		for i := range f.Cells {
			ch := r.u32()
			if ch > math.MaxInt32 {
				ch = 0xFFFD
			}
			fg := r.rgb()
			bg := r.rgb()
			a := r.u8()
			f.Cells[i] = grid.Cell{
				Char:      rune(ch),
				FG:        fg,
				BG:        bg,
				Bold:      a&attrBold != 0,
				Italic:    a&attrItalic != 0,
				Underline: a&attrUnderline != 0,
				Inverse:   a&attrInverse != 0,
			}
		}
		msg = f
	case tagInput:
		msg = &Key{Data: r.bytes()}
	case tagResize:
		m := &Resize{Cols: int(r.u16()), Rows: int(r.u16())}
		if r.err == nil {
			if err := checkDimensions(m.Cols, m.Rows); err != nil {
				return nil, err
			}
		}
		msg = m
	case tagPaste:
		msg = &Paste{Text: string(r.bytes())}
	case tagScroll:
		msg = &Scroll{Delta: int(int32(r.u32()))}
	case tagQuality:
		msg = &Quality{MinIntervalMS: int(r.u32())}
	case tagHello:
		m := &Hello{Session: string(r.bytes())}
		m.Cols = int(r.u16())
		m.Rows = int(r.u16())
		m.Format = string(r.bytes())
		msg = m
	case tagWelcome:
		msg = &Welcome{Session: string(r.bytes())}
	case tagError:
		msg = &Error{Message: string(r.bytes())}
	default:
		return nil, decodeError(fmt.Errorf("%w: tag %d", ErrUnknownType, tag))
	}
	if r.err != nil {
		return nil, decodeError(r.err)
	}
	return msg, nil
}

// reader consumes big-endian fields, recording ErrTruncated on the first
// short read and returning zero values afterwards.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = ErrTruncated
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) rgb() grid.RGB {
	if b := r.take(3); b != nil {
		return grid.RGB{b[0], b[1], b[2]}
	}
	return grid.RGB{}
}

func (r *reader) bytes() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.b)) {
		r.err = ErrTruncated
		return nil
	}
	b := r.take(int(n))
	return append([]byte(nil), b...)
}
