package serialization

import (
	"encoding/base64"
	"encoding/gob"
	"io"
)

// gobStream carries gob data inside base64 so it can live in text columns
// and string-valued stores. Each stream holds exactly one value.
type gobStream struct {
	dec   *gob.Decoder
	enc   *gob.Encoder
	flush io.Closer
}

func (g *gobStream) Decode(v any) error {
	return g.dec.Decode(v)
}

func (g *gobStream) Encode(v any) error {
	if err := g.enc.Encode(v); err != nil {
		return err
	}
	return g.flush.Close()
}

// GobDecoder reads a base64 wrapped gob value from r.
func GobDecoder(r io.Reader) Decoder {
	return &gobStream{dec: gob.NewDecoder(base64.NewDecoder(base64.StdEncoding, r))}
}

// GobEncoder writes a single gob value to w as base64.
func GobEncoder(w io.Writer) Encoder {
	b64 := base64.NewEncoder(base64.StdEncoding, w)
	return &gobStream{enc: gob.NewEncoder(b64), flush: b64}
}
