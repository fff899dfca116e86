package serialization

import (
	"encoding/json"
	"io"
)

// jsonStream keeps server messages verbatim: HTML characters are not escaped.
type jsonStream struct {
	dec *json.Decoder
	enc *json.Encoder
}

func (j *jsonStream) Decode(v any) error {
	return j.dec.Decode(v)
}

func (j *jsonStream) Encode(v any) error {
	return j.enc.Encode(v)
}

// JSONDecoder reads one JSON value per Decode call from r.
func JSONDecoder(r io.Reader) Decoder {
	return &jsonStream{dec: json.NewDecoder(r)}
}

// JSONEncoder writes newline-terminated JSON values to w.
func JSONEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonStream{enc: enc}
}
