package telnet

import (
	"errors"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Charset is the locale-default 8-bit text codec the plaintext sub-parser
// decodes with. There is no RFC 2066 CHARSET negotiation here (out of
// scope); the encoding is fixed for the engine's lifetime, chosen the way
// the teacher's NewCharset resolves an IANA code page name, just without
// the negotiated/fallback/binary-mode layers CHARSET would otherwise need.
type Charset struct {
	name    string
	encoder *encoding.Encoder
	decoder *encoding.Decoder
}

// NewCharset resolves codePage (an IANA-registered name, e.g. "US-ASCII",
// "UTF-8", "CP437") to a Charset. An empty codePage defaults to US-ASCII,
// the RFC 854 default for Telnet NVT text.
func NewCharset(codePage string) (*Charset, error) {
	if codePage == "" {
		codePage = "US-ASCII"
	}

	enc, err := ianaindex.IANA.Encoding(codePage)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, errors.New("telnet: unsupported charset " + codePage)
	}

	name, err := ianaindex.IANA.Name(enc)
	if err != nil {
		return nil, err
	}

	return &Charset{
		name:    name,
		encoder: enc.NewEncoder(),
		decoder: enc.NewDecoder(),
	}, nil
}

// Name returns the resolved IANA name of this charset.
func (c *Charset) Name() string {
	return c.name
}

// Decode converts a plaintext run from the wire encoding to UTF-8. Bytes
// that don't decode cleanly are replaced rather than rejected, since a
// misbehaving peer shouldn't be able to stall the message stream.
func (c *Charset) Decode(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	text, err := c.decoder.Bytes(data)
	if err != nil || text == nil {
		return strings.ToValidUTF8(string(data), "�")
	}
	return string(text)
}

// Encode converts UTF-8 application text to the wire encoding. The engine
// does not call it: SendData writes its payload verbatim and the login
// assistant writes credentials as given.
func (c *Charset) Encode(text string) ([]byte, error) {
	return c.encoder.Bytes([]byte(text))
}
