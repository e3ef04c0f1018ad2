package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/noirtty/noirtty/internal/grid"
)

// MaxDimension bounds cols and rows accepted from the wire.
const MaxDimension = 4096

// JSONCodec is the field-tagged text encoding.
type JSONCodec struct{}

func (JSONCodec) Name() string { return FormatJSON }

type envelope struct {
	Type string `json:"type"`
}

type jsonCell struct {
	Ch        string   `json:"ch"`
	FG        grid.RGB `json:"fg"`
	BG        grid.RGB `json:"bg"`
	Bold      bool     `json:"bold"`
	Italic    bool     `json:"italic"`
	Underline bool     `json:"underline"`
	Inverse   bool     `json:"inverse,omitempty"`
}

type jsonFrame struct {
	Type          string     `json:"type"`
	Sequence      uint64     `json:"sequence"`
	Cols          int        `json:"cols"`
	Rows          int        `json:"rows"`
	Cells         []jsonCell `json:"cells"`
	CursorRow     int        `json:"cursor_row"`
	CursorCol     int        `json:"cursor_col"`
	CursorVisible bool       `json:"cursor_visible"`
	AppCursorKeys bool       `json:"app_cursor,omitempty"`
}

type jsonInput struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type jsonResize struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type jsonPaste struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type jsonScroll struct {
	Type  string `json:"type"`
	Delta int    `json:"delta"`
}

type jsonQuality struct {
	Type          string `json:"type"`
	MinIntervalMS int    `json:"min_interval_ms"`
}

type jsonHello struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Cols    int    `json:"cols"`
	Rows    int    `json:"rows"`
	Format  string `json:"format,omitempty"`
}

type jsonWelcome struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

type jsonError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	var v any
	switch m := msg.(type) {
	case *Frame:
		cells := make([]jsonCell, len(m.Cells))
		for i, c := range m.Cells {
			cells[i] = jsonCell{
				Ch:        string(c.Char),
				FG:        c.FG,
				BG:        c.BG,
				Bold:      c.Bold,
				Italic:    c.Italic,
				Underline: c.Underline,
				Inverse:   c.Inverse,
			}
		}
		v = jsonFrame{
			Type:          TypeFrame,
			Sequence:      m.Sequence,
			Cols:          m.Cols,
			Rows:          m.Rows,
			Cells:         cells,
			CursorRow:     m.CursorRow,
			CursorCol:     m.CursorCol,
			CursorVisible: m.CursorVisible,
			AppCursorKeys: m.AppCursorKeys,
		}
	case *Key:
		v = jsonInput{Type: TypeInput, Data: m.Data}
	case *Resize:
		v = jsonResize{Type: TypeResize, Cols: m.Cols, Rows: m.Rows}
	case *Paste:
		v = jsonPaste{Type: TypePaste, Text: m.Text}
	case *Scroll:
		v = jsonScroll{Type: TypeScroll, Delta: m.Delta}
	case *Quality:
		v = jsonQuality{Type: TypeQuality, MinIntervalMS: m.MinIntervalMS}
	case *Hello:
		v = jsonHello{Type: TypeHello, Session: m.Session, Cols: m.Cols, Rows: m.Rows, Format: m.Format}
	case *Welcome:
		v = jsonWelcome{Type: TypeWelcome, Session: m.Session}
	case *Error:
		v = jsonError{Type: TypeError, Message: m.Message}
	default:
		return nil, &ProtocolError{Op: "encode", Err: fmt.Errorf("%w: %T", ErrUnknownType, msg)}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ProtocolError{Op: "encode", Err: err}
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var env envelope
	if err := unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeFrame:
		var f jsonFrame
		if err := unmarshal(data, &f); err != nil {
			return nil, err
		}
		if err := checkFrameShape(f.Cols, f.Rows, len(f.Cells)); err != nil {
			return nil, err
		}
		cells := make([]grid.Cell, len(f.Cells))
		for i, c := range f.Cells {
			r, _ := utf8.DecodeRuneInString(c.Ch)
			if c.Ch == "" {
				r = ' '
			}
			cells[i] = grid.Cell{
				Char:      r,
				FG:        c.FG,
				BG:        c.BG,
				Bold:      c.Bold,
				Italic:    c.Italic,
				Underline: c.Underline,
				Inverse:   c.Inverse,
			}
		}
		return &Frame{
			Sequence:      f.Sequence,
			Cols:          f.Cols,
			Rows:          f.Rows,
			Cells:         cells,
			CursorRow:     f.CursorRow,
			CursorCol:     f.CursorCol,
			CursorVisible: f.CursorVisible,
			AppCursorKeys: f.AppCursorKeys,
		}, nil
	case TypeInput:
		var m jsonInput
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Key{Data: m.Data}, nil
	case TypeResize:
		var m jsonResize
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if err := checkDimensions(m.Cols, m.Rows); err != nil {
			return nil, err
		}
		return &Resize{Cols: m.Cols, Rows: m.Rows}, nil
	case TypePaste:
		var m jsonPaste
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Paste{Text: m.Text}, nil
	case TypeScroll:
		var m jsonScroll
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Scroll{Delta: m.Delta}, nil
	case TypeQuality:
		var m jsonQuality
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Quality{MinIntervalMS: m.MinIntervalMS}, nil
	case TypeHello:
		var m jsonHello
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Hello{Session: m.Session, Cols: m.Cols, Rows: m.Rows, Format: m.Format}, nil
	case TypeWelcome:
		var m jsonWelcome
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Welcome{Session: m.Session}, nil
	case TypeError:
		var m jsonError
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &Error{Message: m.Message}, nil
	}
	return nil, decodeError(fmt.Errorf("%w: %q", ErrUnknownType, env.Type))
}

func unmarshal(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntax *json.SyntaxError
	if errors.As(err, &syntax) && strings.Contains(syntax.Error(), "unexpected end") {
		return decodeError(fmt.Errorf("%w: %v", ErrTruncated, err))
	}
	return decodeError(fmt.Errorf("%w: %v", ErrMalformed, err))
}

func checkDimensions(cols, rows int) error {
	if cols < 1 || rows < 1 || cols > MaxDimension || rows > MaxDimension {
		return decodeError(fmt.Errorf("%w: dimensions %dx%d", ErrMalformed, cols, rows))
	}
	return nil
}

func checkFrameShape(cols, rows, cells int) error {
	if err := checkDimensions(cols, rows); err != nil {
		return err
	}
	if cells != cols*rows {
		return decodeError(fmt.Errorf("%w: %d cells for %dx%d", ErrMalformed, cells, cols, rows))
	}
	return nil
}
