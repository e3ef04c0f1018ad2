package protocol

import "fmt"

// Wire format names, as accepted in the "format" connection parameter.
const (
	FormatJSON   = "json"
	FormatBinary = "binary"
)

// Codec converts messages to and from payload bytes. Implementations are
// stateless and safe for concurrent use.
type Codec interface {
	Name() string
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// CodecFor returns the codec registered under name. An empty name selects JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", FormatJSON:
		return JSONCodec{}, nil
	case FormatBinary, "bincode":
		return BinaryCodec{Compress: true}, nil
	}
	return nil, fmt.Errorf("unknown wire format %q", name)
}
